// Package review manages the human adjudication queue for ambiguous
// (issuer, period) resolutions.
package review

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/refdata"
	"github.com/sells-group/ta-tracker/internal/store"
	"github.com/sells-group/ta-tracker/internal/timeseries"
)

// ErrUnknownAgent is returned when a resolution names an agent id that is not
// in the reference table.
var ErrUnknownAgent = eris.New("review: unknown agent id")

// Queue wraps the store's review tables with the enqueue and resolve policies.
type Queue struct {
	store  store.Store
	agents *refdata.Table
	merger *timeseries.Merger
	log    *zap.Logger
}

func NewQueue(st store.Store, agents *refdata.Table) *Queue {
	return &Queue{
		store:  st,
		agents: agents,
		merger: timeseries.NewMerger(st),
		log:    zap.L().With(zap.String("component", "review")),
	}
}

// Enqueue adds or refreshes the pending item for (cik, period). Enqueueing the
// same key twice yields one item with the latest evidence. A key whose item
// was already resolved by a human is left alone; the human decision stands.
func (q *Queue) Enqueue(ctx context.Context, item model.ReviewItem) error {
	existing, err := q.store.GetReviewItem(ctx, item.CIK, item.Period)
	if err != nil {
		return eris.Wrapf(err, "review: check existing item %s/%s", item.CIK, item.Period)
	}
	if existing != nil {
		if existing.Status == model.ReviewResolved {
			q.log.Debug("skipping enqueue, already resolved by human",
				zap.String("cik", item.CIK),
				zap.String("period", item.Period),
			)
			return nil
		}
		// Keep identity and creation time, refresh the evidence.
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	}
	item.Status = model.ReviewPending
	return q.store.UpsertReviewItem(ctx, item)
}

// ListPending returns all items awaiting adjudication.
func (q *Queue) ListPending(ctx context.Context) ([]model.ReviewItem, error) {
	return q.store.ListReviewItems(ctx, model.ReviewPending)
}

// Resolve records a human decision for a pending item and merges the
// resulting snapshot with full confidence. The agent id must exist in the
// reference table or be UNKNOWN.
func (q *Queue) Resolve(ctx context.Context, cik, period, agentID string) (*model.Snapshot, error) {
	if agentID != model.AgentUnknown {
		if _, ok := q.agents.Get(agentID); !ok {
			return nil, eris.Wrapf(ErrUnknownAgent, "%q", agentID)
		}
	}

	item, err := q.store.GetReviewItem(ctx, cik, period)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load item %s/%s", cik, period)
	}
	if item == nil || item.Status != model.ReviewPending {
		return nil, eris.Wrapf(store.ErrNotFound, "pending review item %s/%s", cik, period)
	}

	if err := q.store.MarkReviewResolved(ctx, cik, period, agentID); err != nil {
		return nil, err
	}

	snap := model.Snapshot{
		CIK:        cik,
		Period:     period,
		AgentID:    agentID,
		Confidence: 1.0,
		Method:     model.MatchHumanReview,
		Filings:    supportingFilings(item, agentID),
		ResolvedAt: time.Now().UTC(),
	}
	if _, err := q.merger.Merge(ctx, snap); err != nil {
		return nil, eris.Wrapf(err, "review: merge resolution %s/%s", cik, period)
	}

	q.log.Info("review item resolved",
		zap.String("cik", cik),
		zap.String("period", period),
		zap.String("agent", agentID),
	)
	return &snap, nil
}

// supportingFilings collects the filings backing the chosen agent; when the
// human picked an agent no group proposed, fall back to all evidence.
func supportingFilings(item *model.ReviewItem, agentID string) []model.FilingRef {
	seen := make(map[string]bool)
	var refs []model.FilingRef
	add := func(group model.CandidateGroup) {
		for _, c := range group.Candidates {
			if !seen[c.Filing.Accession] {
				seen[c.Filing.Accession] = true
				refs = append(refs, c.Filing)
			}
		}
	}

	for _, g := range item.Groups {
		if g.AgentID == agentID {
			add(g)
		}
	}
	if len(refs) == 0 {
		for _, g := range item.Groups {
			add(g)
		}
	}
	return refs
}
