package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/refdata"
)

func testTable(t *testing.T) *refdata.Table {
	t.Helper()
	table, err := refdata.New([]refdata.Agent{
		{ID: "computershare", Name: "Computershare Trust Company", Aliases: []string{"Computershare"}},
		{ID: "equiniti", Name: "Equiniti Trust Company", Aliases: []string{"Equiniti"}},
		{ID: "ast", Name: "American Stock Transfer & Trust Company", Aliases: []string{"American Stock Transfer", "AST"}},
		{ID: "fidelity", Name: "Fidelity Transfer Company", Aliases: []string{"Fidelity"}},
	})
	require.NoError(t, err)
	return table
}

func newTestCanonicalizer(t *testing.T) *Canonicalizer {
	t.Helper()
	c, err := New(testTable(t), 0.85)
	require.NoError(t, err)
	return c
}

func TestCanonicalizeExactAlias(t *testing.T) {
	c := newTestCanonicalizer(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain name", "Computershare Trust Company", "computershare"},
		{"suffix and punctuation variant", "Computershare Trust Company, N.A.", "computershare"},
		{"case insensitive", "COMPUTERSHARE", "computershare"},
		{"ampersand variant", "American Stock Transfer and Trust Company", "ast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Canonicalize(tt.raw, nil)
			assert.Equal(t, tt.want, got.AgentID)
			assert.Equal(t, 1.0, got.Confidence)
			assert.Equal(t, model.MatchExactAlias, got.Method)
		})
	}
}

func TestCanonicalizeFuzzyTypo(t *testing.T) {
	c := newTestCanonicalizer(t)

	got := c.Canonicalize("Equinity Trust Company", nil)
	assert.Equal(t, "equiniti", got.AgentID)
	assert.Equal(t, model.MatchFuzzy, got.Method)
	assert.GreaterOrEqual(t, got.Confidence, 0.85)
	assert.Less(t, got.Confidence, 1.0)
}

func TestCanonicalizeEmbeddedBrandIsNoise(t *testing.T) {
	c := newTestCanonicalizer(t)

	// "High-Fidelity" shares a token with the Fidelity alias but is not a
	// variant spelling; the token-ratio scaling keeps it below the noise floor.
	got := c.Canonicalize("High-Fidelity", nil)
	assert.Equal(t, model.AgentUnknown, got.AgentID)
	assert.Less(t, got.Confidence, 0.5)
}

func TestCanonicalizeUnknownBelowThreshold(t *testing.T) {
	c := newTestCanonicalizer(t)

	got := c.Canonicalize("Pacific Coast Registrars", nil)
	assert.Equal(t, model.AgentUnknown, got.AgentID)
	assert.Less(t, got.Confidence, 0.85)
}

func TestCanonicalizeShortFragment(t *testing.T) {
	c := newTestCanonicalizer(t)

	got := c.Canonicalize("NA", nil)
	assert.Equal(t, model.AgentUnknown, got.AgentID)
	assert.Zero(t, got.Confidence)
}

func TestCanonicalizeHistoryBreaksTies(t *testing.T) {
	table, err := refdata.New([]refdata.Agent{
		{ID: "alpha", Name: "Alpha Transfer", Aliases: []string{"Acme Registrar North"}},
		{ID: "beta", Name: "Beta Transfer", Aliases: []string{"Acme Registrar South"}},
	})
	require.NoError(t, err)
	c, err := New(table, 0.85)
	require.NoError(t, err)

	// Equidistant from both aliases: without history the lexically first
	// agent wins; with history the incumbent wins.
	raw := "Acme Registrar Nouth"
	noHistory := c.Canonicalize(raw, nil)
	withHistory := c.Canonicalize(raw, map[string]int{"beta": 3})

	assert.Equal(t, "alpha", noHistory.AgentID)
	assert.Equal(t, "beta", withHistory.AgentID)
	assert.Equal(t, noHistory.Confidence, withHistory.Confidence)
}

func TestNewRejectsConflictingAliases(t *testing.T) {
	table, err := refdata.New([]refdata.Agent{
		{ID: "a", Name: "First Agent", Aliases: []string{"Shared Alias"}},
		{ID: "b", Name: "Second Agent", Aliases: []string{"Shared Alias, Inc."}},
	})
	require.NoError(t, err)

	_, err = New(table, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHARED ALIAS")
}

func TestNewRejectsEmptyTable(t *testing.T) {
	_, err := New(nil, 0.85)
	require.Error(t, err)
}
