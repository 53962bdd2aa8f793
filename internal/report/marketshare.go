// Package report computes analyst summaries over the committed time series.
package report

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/refdata"
	"github.com/sells-group/ta-tracker/internal/store"
)

// ShareRow is one brand's standing in one period.
type ShareRow struct {
	Period  string  `json:"period"`
	Brand   string  `json:"brand"`
	Issuers int     `json:"issuers"`
	Share   float64 `json:"share"`
}

// MarketShare computes per-period brand market share over committed
// snapshots. Agents roll up to their parent brand; UNKNOWN snapshots count
// toward the period total but are reported under UNKNOWN so coverage gaps
// stay visible.
func MarketShare(ctx context.Context, st store.Store, agents *refdata.Table) ([]ShareRow, error) {
	snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: list snapshots")
	}

	type key struct{ period, brand string }
	counts := make(map[key]int)
	totals := make(map[string]int)
	for _, s := range snaps {
		brand := s.AgentID
		if a, ok := agents.Get(s.AgentID); ok {
			brand = a.BrandID()
		}
		counts[key{s.Period, brand}]++
		totals[s.Period]++
	}

	rows := make([]ShareRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, ShareRow{
			Period:  k.period,
			Brand:   k.brand,
			Issuers: n,
			Share:   float64(n) / float64(totals[k.period]),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Period != rows[j].Period {
			return rows[i].Period < rows[j].Period
		}
		if rows[i].Issuers != rows[j].Issuers {
			return rows[i].Issuers > rows[j].Issuers
		}
		return rows[i].Brand < rows[j].Brand
	})
	return rows, nil
}

// AgentActivity summarizes one agent's footprint across the dataset.
type AgentActivity struct {
	AgentID   string `json:"agent_id"`
	Issuers   int    `json:"issuers"`
	Snapshots int    `json:"snapshots"`
	Gains     int    `json:"gains"`  // transitions won
	Losses    int    `json:"losses"` // transitions lost
}

// Activity computes per-agent totals and transition win/loss counts.
func Activity(ctx context.Context, st store.Store, transitions []model.Transition) ([]AgentActivity, error) {
	snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "report: list snapshots")
	}

	byAgent := make(map[string]*AgentActivity)
	get := func(id string) *AgentActivity {
		a, ok := byAgent[id]
		if !ok {
			a = &AgentActivity{AgentID: id}
			byAgent[id] = a
		}
		return a
	}

	issuers := make(map[string]map[string]bool)
	for _, s := range snaps {
		a := get(s.AgentID)
		a.Snapshots++
		if issuers[s.AgentID] == nil {
			issuers[s.AgentID] = make(map[string]bool)
		}
		issuers[s.AgentID][s.CIK] = true
	}
	for id, set := range issuers {
		get(id).Issuers = len(set)
	}
	for _, t := range transitions {
		get(t.ToAgentID).Gains++
		get(t.FromAgentID).Losses++
	}

	rows := make([]AgentActivity, 0, len(byAgent))
	for _, a := range byAgent {
		rows = append(rows, *a)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Issuers != rows[j].Issuers {
			return rows[i].Issuers > rows[j].Issuers
		}
		return rows[i].AgentID < rows[j].AgentID
	})
	return rows, nil
}
