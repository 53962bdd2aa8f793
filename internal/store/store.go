// Package store persists the transfer-agent time series, the review queue,
// the merge change log, and the run log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = eris.New("store: not found")

// SnapshotFilter narrows ListSnapshots.
type SnapshotFilter struct {
	CIK    string
	Period string
	Limit  int
}

// Store is the persistence interface for the tracker. Implementations must
// enforce at most one snapshot and at most one review item per (cik, period).
type Store interface {
	// Snapshots
	GetSnapshot(ctx context.Context, cik, period string) (*model.Snapshot, error) // (nil, nil) when absent
	UpsertSnapshot(ctx context.Context, s model.Snapshot) error
	UpsertSnapshots(ctx context.Context, snaps []model.Snapshot) error
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.Snapshot, error)
	AgentHistory(ctx context.Context, cik string) (map[string]int, error) // agent id -> committed snapshot count

	// Review queue
	UpsertReviewItem(ctx context.Context, item model.ReviewItem) error
	GetReviewItem(ctx context.Context, cik, period string) (*model.ReviewItem, error) // (nil, nil) when absent
	ListReviewItems(ctx context.Context, status model.ReviewStatus) ([]model.ReviewItem, error)
	MarkReviewResolved(ctx context.Context, cik, period, agentID string) error // ErrNotFound if not pending

	// Merge change log
	AppendChanges(ctx context.Context, entries []model.ChangeEntry) error
	ListChanges(ctx context.Context, limit int) ([]model.ChangeEntry, error)

	// Run log
	StartRun(ctx context.Context, note string) (string, error)
	CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]model.RunLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
