package model

import "time"

// ChangeKind classifies a merge change-log entry.
type ChangeKind string

const (
	// ChangeInsert records a snapshot committed for a previously empty (issuer, period).
	ChangeInsert ChangeKind = "insert"
	// ChangeReplace records an existing snapshot replaced by an equal-or-higher
	// confidence resolution or a human override.
	ChangeReplace ChangeKind = "replace"
	// ChangeConflict records a disagreement that lost to existing data. The
	// existing snapshot wins but the disagreement is never dropped silently.
	ChangeConflict ChangeKind = "conflict"
)

// ChangeEntry is one row of the merge change log.
type ChangeEntry struct {
	Kind           ChangeKind `json:"kind"`
	CIK            string     `json:"cik"`
	Period         string     `json:"period"`
	AgentID        string     `json:"agent_id"`
	PrevAgentID    string     `json:"prev_agent_id,omitempty"`
	Confidence     float64    `json:"confidence"`
	PrevConfidence float64    `json:"prev_confidence,omitempty"`
	Note           string     `json:"note,omitempty"`
	At             time.Time  `json:"at"`
}

// Transition is a period-to-period change in an issuer's committed agent.
// Always derived from committed snapshots on read, never persisted.
type Transition struct {
	CIK         string `json:"cik"`
	Period      string `json:"period"`
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
}

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunSummary is the user-facing outcome of a pipeline run. Per-filing errors
// are counted here rather than aborting the run.
type RunSummary struct {
	FilingsProcessed int `json:"filings_processed"`
	FilingsSkipped   int `json:"filings_skipped"`
	Mentions         int `json:"mentions"`
	Committed        int `json:"committed"`
	ReviewQueued     int `json:"review_queued"`
	Conflicts        int `json:"conflicts"`
	Issuers          int `json:"issuers"`
}

// RunLogEntry is one row of the run log.
type RunLogEntry struct {
	ID          string      `json:"id"`
	Note        string      `json:"note,omitempty"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
}
