// Package timeseries merges resolved snapshots into the committed per-issuer
// history and derives transitions from it.
package timeseries

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/store"
)

// MergeResult classifies what a single merge did.
type MergeResult string

const (
	// MergeNoop means the incoming snapshot matched the committed one exactly.
	MergeNoop MergeResult = "noop"
	// MergeInsert means a previously empty (issuer, period) was filled.
	MergeInsert MergeResult = "insert"
	// MergeReplace means the committed snapshot was replaced.
	MergeReplace MergeResult = "replace"
	// MergeConflict means the incoming snapshot disagreed but lost. The
	// committed snapshot is untouched and a conflict entry is logged.
	MergeConflict MergeResult = "conflict"
)

// Merger applies snapshot resolutions against the committed time series.
// Callers must serialize merges per issuer; the pipeline partitions work so
// that one worker owns all periods of a given CIK.
type Merger struct {
	store store.Store
	log   *zap.Logger
}

func NewMerger(st store.Store) *Merger {
	return &Merger{
		store: st,
		log:   zap.L().With(zap.String("component", "timeseries")),
	}
}

// Merge folds one resolved snapshot into the committed history.
//
// Rules, in order:
//   - no committed snapshot: insert
//   - identical agent and confidence: no-op, nothing is written
//   - same agent, higher confidence: replace (confidence raised)
//   - human override, or confidence >= committed: replace
//   - otherwise: the committed snapshot wins and a conflict is logged,
//     including a same-agent rerun that comes back weaker
func (m *Merger) Merge(ctx context.Context, incoming model.Snapshot) (MergeResult, error) {
	existing, err := m.store.GetSnapshot(ctx, incoming.CIK, incoming.Period)
	if err != nil {
		return "", eris.Wrapf(err, "timeseries: load snapshot %s/%s", incoming.CIK, incoming.Period)
	}

	if existing == nil {
		if err := m.store.UpsertSnapshot(ctx, incoming); err != nil {
			return "", eris.Wrapf(err, "timeseries: insert snapshot %s/%s", incoming.CIK, incoming.Period)
		}
		entry := model.ChangeEntry{
			Kind:       model.ChangeInsert,
			CIK:        incoming.CIK,
			Period:     incoming.Period,
			AgentID:    incoming.AgentID,
			Confidence: incoming.Confidence,
			At:         incoming.ResolvedAt,
		}
		if err := m.store.AppendChanges(ctx, []model.ChangeEntry{entry}); err != nil {
			return "", eris.Wrap(err, "timeseries: log insert")
		}
		return MergeInsert, nil
	}

	if existing.AgentID == incoming.AgentID && existing.Confidence == incoming.Confidence {
		// Re-running the same filings must not touch the store.
		return MergeNoop, nil
	}

	if existing.AgentID == incoming.AgentID {
		if incoming.Confidence < existing.Confidence {
			// Same agent but weaker evidence. The committed snapshot stands,
			// but the disagreement over confidence is still recorded.
			entry := model.ChangeEntry{
				Kind:           model.ChangeConflict,
				CIK:            incoming.CIK,
				Period:         incoming.Period,
				AgentID:        incoming.AgentID,
				PrevAgentID:    existing.AgentID,
				Confidence:     incoming.Confidence,
				PrevConfidence: existing.Confidence,
				Note:           "lower confidence than committed",
				At:             incoming.ResolvedAt,
			}
			if err := m.store.AppendChanges(ctx, []model.ChangeEntry{entry}); err != nil {
				return "", eris.Wrap(err, "timeseries: log conflict")
			}
			return MergeConflict, nil
		}
		if err := m.store.UpsertSnapshot(ctx, incoming); err != nil {
			return "", eris.Wrapf(err, "timeseries: raise confidence %s/%s", incoming.CIK, incoming.Period)
		}
		entry := model.ChangeEntry{
			Kind:           model.ChangeReplace,
			CIK:            incoming.CIK,
			Period:         incoming.Period,
			AgentID:        incoming.AgentID,
			PrevAgentID:    existing.AgentID,
			Confidence:     incoming.Confidence,
			PrevConfidence: existing.Confidence,
			Note:           "confidence raised",
			At:             incoming.ResolvedAt,
		}
		if err := m.store.AppendChanges(ctx, []model.ChangeEntry{entry}); err != nil {
			return "", eris.Wrap(err, "timeseries: log confidence raise")
		}
		return MergeReplace, nil
	}

	// Disagreement. A human override always wins; an equal-or-higher
	// confidence resolution wins unless the committed snapshot itself is a
	// human override.
	wins := incoming.Override() || (!existing.Override() && incoming.Confidence >= existing.Confidence)
	if !wins {
		m.log.Info("merge conflict, committed snapshot wins",
			zap.String("cik", incoming.CIK),
			zap.String("period", incoming.Period),
			zap.String("committed_agent", existing.AgentID),
			zap.String("incoming_agent", incoming.AgentID),
			zap.Float64("committed_confidence", existing.Confidence),
			zap.Float64("incoming_confidence", incoming.Confidence),
		)
		entry := model.ChangeEntry{
			Kind:           model.ChangeConflict,
			CIK:            incoming.CIK,
			Period:         incoming.Period,
			AgentID:        incoming.AgentID,
			PrevAgentID:    existing.AgentID,
			Confidence:     incoming.Confidence,
			PrevConfidence: existing.Confidence,
			Note:           fmt.Sprintf("lost to committed %s", existing.AgentID),
			At:             incoming.ResolvedAt,
		}
		if err := m.store.AppendChanges(ctx, []model.ChangeEntry{entry}); err != nil {
			return "", eris.Wrap(err, "timeseries: log conflict")
		}
		return MergeConflict, nil
	}

	if err := m.store.UpsertSnapshot(ctx, incoming); err != nil {
		return "", eris.Wrapf(err, "timeseries: replace snapshot %s/%s", incoming.CIK, incoming.Period)
	}
	entry := model.ChangeEntry{
		Kind:           model.ChangeReplace,
		CIK:            incoming.CIK,
		Period:         incoming.Period,
		AgentID:        incoming.AgentID,
		PrevAgentID:    existing.AgentID,
		Confidence:     incoming.Confidence,
		PrevConfidence: existing.Confidence,
		At:             incoming.ResolvedAt,
	}
	if incoming.Override() {
		entry.Note = "human override"
	}
	if err := m.store.AppendChanges(ctx, []model.ChangeEntry{entry}); err != nil {
		return "", eris.Wrap(err, "timeseries: log replace")
	}
	return MergeReplace, nil
}

// Transitions derives period-to-period agent changes for one issuer from its
// committed snapshots. Derived on every call; transitions are never stored, so
// a replaced snapshot automatically rewrites history.
func (m *Merger) Transitions(ctx context.Context, cik string) ([]model.Transition, error) {
	snaps, err := m.store.ListSnapshots(ctx, store.SnapshotFilter{CIK: cik})
	if err != nil {
		return nil, eris.Wrapf(err, "timeseries: list snapshots for %s", cik)
	}
	return derive(snaps), nil
}

// AllTransitions derives transitions across every issuer in the store.
func (m *Merger) AllTransitions(ctx context.Context) ([]model.Transition, error) {
	snaps, err := m.store.ListSnapshots(ctx, store.SnapshotFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "timeseries: list snapshots")
	}

	byCIK := make(map[string][]model.Snapshot)
	var ciks []string
	for _, s := range snaps {
		if _, ok := byCIK[s.CIK]; !ok {
			ciks = append(ciks, s.CIK)
		}
		byCIK[s.CIK] = append(byCIK[s.CIK], s)
	}
	sort.Strings(ciks)

	var out []model.Transition
	for _, cik := range ciks {
		out = append(out, derive(byCIK[cik])...)
	}
	return out, nil
}

// derive walks one issuer's snapshots in period order and emits a transition
// at each period whose agent differs from the previous committed period.
// UNKNOWN periods neither emit nor suppress transitions.
func derive(snaps []model.Snapshot) []model.Transition {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CIK != snaps[j].CIK {
			return snaps[i].CIK < snaps[j].CIK
		}
		return snaps[i].Period < snaps[j].Period
	})

	var out []model.Transition
	prev := ""
	prevCIK := ""
	for _, s := range snaps {
		if s.CIK != prevCIK {
			prev = ""
			prevCIK = s.CIK
		}
		if s.AgentID == model.AgentUnknown {
			continue
		}
		if prev != "" && prev != s.AgentID {
			out = append(out, model.Transition{
				CIK:         s.CIK,
				Period:      s.Period,
				FromAgentID: prev,
				ToAgentID:   s.AgentID,
			})
		}
		prev = s.AgentID
	}
	return out
}
