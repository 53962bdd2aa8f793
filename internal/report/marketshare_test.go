package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/refdata"
	"github.com/sells-group/ta-tracker/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testTable(t *testing.T) *refdata.Table {
	t.Helper()
	table, err := refdata.New([]refdata.Agent{
		{ID: "computershare", Name: "Computershare Trust Company"},
		{ID: "equiniti", Name: "Equiniti Trust Company"},
		{ID: "ast", Name: "American Stock Transfer & Trust Company", Brand: "equiniti"},
	})
	require.NoError(t, err)
	return table
}

func seed(t *testing.T, st store.Store, cik, period, agentID string) {
	t.Helper()
	require.NoError(t, st.UpsertSnapshot(context.Background(), model.Snapshot{
		CIK:        cik,
		Period:     period,
		AgentID:    agentID,
		Confidence: 0.9,
		Method:     model.MatchExactAlias,
		ResolvedAt: time.Now().UTC(),
	}))
}

func TestMarketShareRollsUpBrands(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// ast rolls up to the equiniti brand: 2 vs 2 in 2023.
	seed(t, st, "100", "2023", "computershare")
	seed(t, st, "200", "2023", "computershare")
	seed(t, st, "300", "2023", "equiniti")
	seed(t, st, "400", "2023", "ast")

	rows, err := MarketShare(ctx, st, testTable(t))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Equal issuer counts: ordered by brand name.
	assert.Equal(t, "computershare", rows[0].Brand)
	assert.Equal(t, 2, rows[0].Issuers)
	assert.InDelta(t, 0.5, rows[0].Share, 1e-9)
	assert.Equal(t, "equiniti", rows[1].Brand)
	assert.Equal(t, 2, rows[1].Issuers)
}

func TestMarketShareKeepsUnknownVisible(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed(t, st, "100", "2023", "computershare")
	seed(t, st, "200", "2023", model.AgentUnknown)

	rows, err := MarketShare(ctx, st, testTable(t))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.AgentUnknown, rows[0].Brand)
	assert.InDelta(t, 0.5, rows[0].Share, 1e-9, "coverage gaps count toward the denominator")
}

func TestMarketShareOrdersPeriodsThenIssuers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed(t, st, "100", "2022", "equiniti")
	seed(t, st, "100", "2023", "equiniti")
	seed(t, st, "200", "2023", "equiniti")
	seed(t, st, "300", "2023", "computershare")

	rows, err := MarketShare(ctx, st, testTable(t))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2022", rows[0].Period)
	assert.Equal(t, "2023", rows[1].Period)
	assert.Equal(t, "equiniti", rows[1].Brand, "larger brand first within a period")
	assert.Equal(t, "computershare", rows[2].Brand)
}

func TestMarketShareEmpty(t *testing.T) {
	rows, err := MarketShare(context.Background(), newTestStore(t), testTable(t))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestActivity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed(t, st, "100", "2022", "computershare")
	seed(t, st, "100", "2023", "equiniti")
	seed(t, st, "200", "2023", "computershare")

	transitions := []model.Transition{
		{CIK: "100", Period: "2023", FromAgentID: "computershare", ToAgentID: "equiniti"},
	}

	rows, err := Activity(ctx, st, transitions)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "computershare", rows[0].AgentID)
	assert.Equal(t, 2, rows[0].Issuers)
	assert.Equal(t, 2, rows[0].Snapshots)
	assert.Equal(t, 0, rows[0].Gains)
	assert.Equal(t, 1, rows[0].Losses)

	assert.Equal(t, "equiniti", rows[1].AgentID)
	assert.Equal(t, 1, rows[1].Issuers)
	assert.Equal(t, 1, rows[1].Gains)
	assert.Equal(t, 0, rows[1].Losses)
}
