package model

import "time"

// ReviewStatus is the lifecycle state of a review item.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// CandidateGroup is one competing canonical agent inside a review item,
// with the evidence that supports it.
type CandidateGroup struct {
	AgentID    string            `json:"agent_id"`
	Confidence float64           `json:"confidence"` // max confidence within the group
	Candidates []ScoredCandidate `json:"candidates"`
}

// ReviewItem is an unresolved (issuer, period) awaiting human adjudication.
// Re-enqueueing replaces Groups with the latest run's evidence; the committed
// resolution only ever comes from a human decision.
type ReviewItem struct {
	ID              string           `json:"id"`
	CIK             string           `json:"cik"`
	Period          string           `json:"period"`
	Groups          []CandidateGroup `json:"groups"`
	Status          ReviewStatus     `json:"status"`
	ResolvedAgentID string           `json:"resolved_agent_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
