// Package model defines the core domain types for the transfer agent tracker.
package model

import "time"

// FilingFormat tags the payload variant of a filing.
type FilingFormat string

const (
	// FormatPlainText marks a filing whose payload is the raw submission text/HTML.
	FormatPlainText FilingFormat = "text"
	// FormatXBRL marks a filing whose payload is an XBRL instance document.
	FormatXBRL FilingFormat = "xbrl"
)

// Filing is a single fetched EDGAR filing. Immutable once fetched.
type Filing struct {
	CIK        string       `json:"cik"`
	FormType   string       `json:"form_type"`
	Accession  string       `json:"accession"`
	FilingDate string       `json:"filing_date"` // YYYY-MM-DD
	Period     string       `json:"period"`      // reporting period, e.g. "2022"
	Format     FilingFormat `json:"format"`
	SourceURL  string       `json:"source_url"`
	Payload    []byte       `json:"-"`
}

// Ref returns the provenance reference that survives into snapshots.
func (f Filing) Ref() FilingRef {
	return FilingRef{
		CIK:        f.CIK,
		Accession:  f.Accession,
		FormType:   f.FormType,
		FilingDate: f.FilingDate,
		SourceURL:  f.SourceURL,
	}
}

// FilingRef identifies a filing without carrying its payload.
type FilingRef struct {
	CIK        string `json:"cik"`
	Accession  string `json:"accession"`
	FormType   string `json:"form_type"`
	FilingDate string `json:"filing_date"`
	SourceURL  string `json:"source_url,omitempty"`
}

// MentionCandidate is a raw transfer-agent mention found inside one filing.
// Created per match; never mutated.
type MentionCandidate struct {
	Filing  FilingRef `json:"filing"`
	Raw     string    `json:"raw"`
	Context string    `json:"context"`
	Method  string    `json:"method"` // regex pattern id or XBRL tag name
	Offset  int       `json:"offset"`
}

// MatchMethod describes how a raw mention was resolved to a canonical agent.
type MatchMethod string

const (
	MatchExactAlias  MatchMethod = "exact-alias"
	MatchFuzzy       MatchMethod = "fuzzy"
	MatchHumanReview MatchMethod = "human-review"
)

// AgentUnknown is the canonical identifier for mentions that could not be
// resolved to any known transfer agent.
const AgentUnknown = "UNKNOWN"

// Match is the canonicalization result for a single raw string.
type Match struct {
	AgentID    string      `json:"agent_id"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
}

// ScoredCandidate is a mention candidate with its canonicalization result.
type ScoredCandidate struct {
	MentionCandidate
	AgentID    string      `json:"agent_id"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"match_method"`
}

// Snapshot is the committed fact "issuer CIK used agent AgentID during Period".
// Keyed uniquely by (CIK, Period). Replaceable only by a resolution with
// confidence >= the existing confidence or by a human override.
type Snapshot struct {
	CIK        string      `json:"cik"`
	Period     string      `json:"period"`
	AgentID    string      `json:"agent_id"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
	Filings    []FilingRef `json:"filings"`
	ResolvedAt time.Time   `json:"resolved_at"`
}

// Override reports whether this snapshot carries an authoritative human decision.
func (s Snapshot) Override() bool { return s.Method == MatchHumanReview }
