// Package canonical maps raw transfer-agent mention strings to canonical
// agent identities.
//
// Matching is an ordered pipeline of pure stages: normalize, exact alias
// lookup, fuzzy similarity scoring, deterministic tie-break. Each stage is
// independently testable and the whole pipeline is side-effect free, so
// canonicalization is safe to run from any number of workers.
package canonical

import (
	"sort"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/refdata"
)

// DefaultAcceptanceThreshold is the minimum fuzzy similarity accepted as a
// canonical match. Below it the mention resolves to UNKNOWN with the score
// retained for the resolver's noise-floor decision.
const DefaultAcceptanceThreshold = 0.85

// minRawLength guards against matching fragments like "NA" or "The".
const minRawLength = 3

type aliasEntry struct {
	norm    string
	agentID string
}

// Canonicalizer resolves raw mention strings against an injected, read-only
// reference table.
type Canonicalizer struct {
	table     *refdata.Table
	exact     map[string]string // normalized alias -> agent id
	entries   []aliasEntry      // sorted, for deterministic fuzzy iteration
	threshold float64
	params    *levenshtein.Params
}

// New builds a Canonicalizer over the reference table. The normalized alias
// index is validated: the same normalized alias may not map to two different
// canonical agents.
func New(table *refdata.Table, threshold float64) (*Canonicalizer, error) {
	if table == nil || table.Len() == 0 {
		return nil, eris.New("canonical: empty reference table")
	}
	if threshold <= 0 {
		threshold = DefaultAcceptanceThreshold
	}

	exact := make(map[string]string)
	var entries []aliasEntry

	for _, agent := range table.Agents() {
		names := append([]string{agent.Name}, agent.Aliases...)
		for _, name := range names {
			n := Normalize(name)
			if n == "" {
				continue
			}
			if owner, ok := exact[n]; ok {
				if owner != agent.ID {
					return nil, eris.Errorf("canonical: alias %q maps to both %s and %s", n, owner, agent.ID)
				}
				continue
			}
			exact[n] = agent.ID
			entries = append(entries, aliasEntry{norm: n, agentID: agent.ID})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].norm != entries[j].norm {
			return entries[i].norm < entries[j].norm
		}
		return entries[i].agentID < entries[j].agentID
	})

	return &Canonicalizer{
		table:     table,
		exact:     exact,
		entries:   entries,
		threshold: threshold,
		params:    levenshtein.NewParams(),
	}, nil
}

// Canonicalize resolves a raw mention string to a canonical agent identity.
//
// history carries the issuer's committed snapshot counts per agent id and is
// only consulted to break exact score ties (stability bias); nil is valid.
func (c *Canonicalizer) Canonicalize(raw string, history map[string]int) model.Match {
	n := Normalize(raw)
	if len(n) < minRawLength {
		return model.Match{AgentID: model.AgentUnknown, Confidence: 0, Method: model.MatchFuzzy}
	}

	if id, ok := c.exact[n]; ok {
		return model.Match{AgentID: id, Confidence: 1.0, Method: model.MatchExactAlias}
	}

	// Best similarity per agent across all of its aliases.
	best := make(map[string]float64)
	for _, e := range c.entries {
		s := c.similarity(n, e.norm)
		if s > best[e.agentID] {
			best[e.agentID] = s
		}
	}

	winner, score := pickWinner(best, history)
	if winner == "" || score < c.threshold {
		return model.Match{AgentID: model.AgentUnknown, Confidence: score, Method: model.MatchFuzzy}
	}
	return model.Match{AgentID: winner, Confidence: score, Method: model.MatchFuzzy}
}

// similarity scores two normalized names in [0,1]. Levenshtein similarity is
// scaled by the token-count ratio: a multi-word mention matching a one-word
// alias is usually the brand embedded in unrelated text ("high-fidelity" vs
// "Fidelity"), not a real variant spelling.
func (c *Canonicalizer) similarity(a, b string) float64 {
	s := levenshtein.Similarity(a, b, c.params)
	ta, tb := len(tokens(a)), len(tokens(b))
	if ta == 0 || tb == 0 {
		return 0
	}
	if ta > tb {
		ta, tb = tb, ta
	}
	return s * float64(ta) / float64(tb)
}

// pickWinner selects the agent with the highest score. Exact ties are broken
// by the issuer's committed-snapshot count (most prior snapshots wins), then
// by lexical agent id, keeping output reproducible across runs.
func pickWinner(scores map[string]float64, history map[string]int) (string, float64) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var winner string
	var best float64
	for _, id := range ids {
		s := scores[id]
		switch {
		case s > best:
			winner, best = id, s
		case s == best && winner != "":
			if history[id] > history[winner] {
				winner = id
			}
		}
	}
	return winner, best
}
