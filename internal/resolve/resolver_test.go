package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/model"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func cand(agentID string, conf float64, accession string) model.ScoredCandidate {
	return model.ScoredCandidate{
		MentionCandidate: model.MentionCandidate{
			Filing: model.FilingRef{CIK: "100", Accession: accession, FormType: "10-K"},
			Raw:    agentID,
			Method: "ta-is",
		},
		AgentID:    agentID,
		Confidence: conf,
		Method:     model.MatchFuzzy,
	}
}

func TestResolveCommitsUniqueWinner(t *testing.T) {
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.95, "acc-1"),
		cand("equiniti", 0.60, "acc-2"),
	}, DefaultPolicy(), testNow)

	require.Equal(t, OutcomeSnapshot, out.Kind)
	require.NotNil(t, out.Snapshot)
	assert.Equal(t, "computershare", out.Snapshot.AgentID)
	assert.Equal(t, 0.95, out.Snapshot.Confidence)
	assert.Equal(t, "100", out.Snapshot.CIK)
	assert.Equal(t, "2023", out.Snapshot.Period)
	assert.Equal(t, testNow, out.Snapshot.ResolvedAt)
}

func TestResolveNoneWhenAllNoise(t *testing.T) {
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.30, "acc-1"),
		cand("equiniti", 0.45, "acc-2"),
	}, DefaultPolicy(), testNow)

	assert.Equal(t, OutcomeNone, out.Kind)
	assert.Nil(t, out.Snapshot)
	assert.Nil(t, out.Review)
}

func TestResolveNoneWhenEmpty(t *testing.T) {
	out := Resolve("100", "2023", nil, DefaultPolicy(), testNow)
	assert.Equal(t, OutcomeNone, out.Kind)
}

func TestResolveReviewOnCloseCompetitors(t *testing.T) {
	// Both clear the threshold but the margin between them is under 0.10.
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.92, "acc-1"),
		cand("equiniti", 0.88, "acc-2"),
	}, DefaultPolicy(), testNow)

	require.Equal(t, OutcomeReview, out.Kind)
	require.NotNil(t, out.Review)
	assert.NotEmpty(t, out.Review.ID)
	assert.Equal(t, model.ReviewPending, out.Review.Status)
	require.Len(t, out.Review.Groups, 2)
	// Groups ordered by confidence descending.
	assert.Equal(t, "computershare", out.Review.Groups[0].AgentID)
	assert.Equal(t, "equiniti", out.Review.Groups[1].AgentID)
}

func TestResolveReviewWhenBelowThreshold(t *testing.T) {
	// Above the noise floor but below acceptance: evidence exists, no commit.
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.70, "acc-1"),
	}, DefaultPolicy(), testNow)

	assert.Equal(t, OutcomeReview, out.Kind)
}

func TestResolveUnknownNeverCommits(t *testing.T) {
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand(model.AgentUnknown, 0.99, "acc-1"),
	}, DefaultPolicy(), testNow)

	assert.Equal(t, OutcomeReview, out.Kind)
}

func TestResolveGroupConfidenceIsMax(t *testing.T) {
	// Many weak mentions of one agent plus one strong one: the group scores
	// at the strong mention, not an average.
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.55, "acc-1"),
		cand("computershare", 0.60, "acc-2"),
		cand("computershare", 0.97, "acc-3"),
	}, DefaultPolicy(), testNow)

	require.Equal(t, OutcomeSnapshot, out.Kind)
	assert.Equal(t, 0.97, out.Snapshot.Confidence)
}

func TestResolveSupportingFilingsDeduplicated(t *testing.T) {
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.95, "acc-2"),
		cand("computershare", 0.90, "acc-2"),
		cand("computershare", 0.91, "acc-1"),
	}, DefaultPolicy(), testNow)

	require.Equal(t, OutcomeSnapshot, out.Kind)
	require.Len(t, out.Snapshot.Filings, 2)
	assert.Equal(t, "acc-1", out.Snapshot.Filings[0].Accession)
	assert.Equal(t, "acc-2", out.Snapshot.Filings[1].Accession)
}

func TestResolveDeterministicTieOrder(t *testing.T) {
	// Identical confidences: group order falls back to lexical agent id, so
	// repeated runs produce the same review item.
	cands := []model.ScoredCandidate{
		cand("equiniti", 0.90, "acc-1"),
		cand("computershare", 0.90, "acc-2"),
	}

	first := Resolve("100", "2023", cands, DefaultPolicy(), testNow)
	second := Resolve("100", "2023", cands, DefaultPolicy(), testNow)

	require.Equal(t, OutcomeReview, first.Kind)
	assert.Equal(t, "computershare", first.Review.Groups[0].AgentID)
	assert.Equal(t, "computershare", second.Review.Groups[0].AgentID)
}

func TestResolveCustomPolicy(t *testing.T) {
	p := Policy{AcceptanceThreshold: 0.60, AmbiguityMargin: 0.05, NoiseFloor: 0.20}
	out := Resolve("100", "2023", []model.ScoredCandidate{
		cand("computershare", 0.65, "acc-1"),
	}, p, testNow)

	assert.Equal(t, OutcomeSnapshot, out.Kind)
}
