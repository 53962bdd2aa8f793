// Package resolve picks a single winning canonical agent (or a review item)
// from all scored mention candidates for one issuer in one reporting period.
package resolve

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/ta-tracker/internal/model"
)

// Policy defaults. All three are run-level configuration; these are the
// values used when nothing is configured.
const (
	DefaultAcceptanceThreshold = 0.85
	DefaultAmbiguityMargin     = 0.10
	DefaultNoiseFloor          = 0.50
)

// Policy holds the resolution thresholds.
type Policy struct {
	AcceptanceThreshold float64
	AmbiguityMargin     float64
	NoiseFloor          float64
}

// DefaultPolicy returns the default resolution policy.
func DefaultPolicy() Policy {
	return Policy{
		AcceptanceThreshold: DefaultAcceptanceThreshold,
		AmbiguityMargin:     DefaultAmbiguityMargin,
		NoiseFloor:          DefaultNoiseFloor,
	}
}

// OutcomeKind discriminates the resolver result.
type OutcomeKind int

const (
	// OutcomeNone means no above-noise candidates existed at all; the period
	// is simply absent from the dataset. Not an error.
	OutcomeNone OutcomeKind = iota
	// OutcomeSnapshot means a unique confident winner was committed.
	OutcomeSnapshot
	// OutcomeReview means genuine ambiguity; a human decides.
	OutcomeReview
)

// Outcome is the resolver result: exactly one of Snapshot or Review is set
// for the corresponding kind.
type Outcome struct {
	Kind     OutcomeKind
	Snapshot *model.Snapshot
	Review   *model.ReviewItem
}

// Resolve applies the deterministic tie-break policy to all candidates for
// one (issuer, period).
//
// Candidates below the noise floor are discarded as noise. Survivors are
// grouped by canonical agent; a group's confidence is the maximum individual
// confidence within it — a single strong exact match outweighs many weak
// fuzzy ones. A snapshot is committed only when exactly one group clears the
// acceptance threshold AND leads every other group by at least the ambiguity
// margin; anything else above the noise floor goes to review.
func Resolve(cik, period string, cands []model.ScoredCandidate, p Policy, now time.Time) Outcome {
	groups := groupCandidates(cands, p.NoiseFloor)
	if len(groups) == 0 {
		return Outcome{Kind: OutcomeNone}
	}

	winner := groups[0]
	unique := winner.AgentID != model.AgentUnknown &&
		winner.Confidence >= p.AcceptanceThreshold &&
		(len(groups) == 1 || winner.Confidence-groups[1].Confidence >= p.AmbiguityMargin)

	if !unique {
		return Outcome{Kind: OutcomeReview, Review: &model.ReviewItem{
			ID:        uuid.New().String(),
			CIK:       cik,
			Period:    period,
			Groups:    groups,
			Status:    model.ReviewPending,
			CreatedAt: now,
			UpdatedAt: now,
		}}
	}

	return Outcome{Kind: OutcomeSnapshot, Snapshot: &model.Snapshot{
		CIK:        cik,
		Period:     period,
		AgentID:    winner.AgentID,
		Confidence: winner.Confidence,
		Method:     bestMethod(winner),
		Filings:    supportingFilings(winner),
		ResolvedAt: now,
	}}
}

// groupCandidates drops noise, groups by canonical agent and orders groups by
// (confidence desc, agent id asc) so resolution is reproducible across runs.
func groupCandidates(cands []model.ScoredCandidate, noiseFloor float64) []model.CandidateGroup {
	byAgent := make(map[string]*model.CandidateGroup)
	for _, c := range cands {
		if c.Confidence < noiseFloor {
			continue
		}
		g, ok := byAgent[c.AgentID]
		if !ok {
			g = &model.CandidateGroup{AgentID: c.AgentID}
			byAgent[c.AgentID] = g
		}
		g.Candidates = append(g.Candidates, c)
		if c.Confidence > g.Confidence {
			g.Confidence = c.Confidence
		}
	}

	groups := make([]model.CandidateGroup, 0, len(byAgent))
	for _, g := range byAgent {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Confidence != groups[j].Confidence {
			return groups[i].Confidence > groups[j].Confidence
		}
		return groups[i].AgentID < groups[j].AgentID
	})
	return groups
}

// bestMethod returns the match method of the group's strongest candidate.
func bestMethod(g model.CandidateGroup) model.MatchMethod {
	method := model.MatchFuzzy
	best := -1.0
	for _, c := range g.Candidates {
		if c.Confidence > best {
			best = c.Confidence
			method = c.Method
		}
	}
	return method
}

// supportingFilings collects the distinct filings backing a group, ordered by
// accession for determinism.
func supportingFilings(g model.CandidateGroup) []model.FilingRef {
	seen := make(map[string]bool)
	var refs []model.FilingRef
	for _, c := range g.Candidates {
		if seen[c.Filing.Accession] {
			continue
		}
		seen[c.Filing.Accession] = true
		refs = append(refs, c.Filing)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Accession < refs[j].Accession })
	return refs
}
