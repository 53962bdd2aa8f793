package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(nil, nil, "ta.snapshots", []string{"cik", "period"}, []string{"cik", "period"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(nil, nil, "ta.snapshots", nil, []string{"cik"}, [][]any{{"100", "2023"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(nil, nil, "ta.snapshots", []string{"cik", "period"}, nil, [][]any{{"100", "2023"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_StagingFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_ta_snapshots"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_ta_snapshots"}, []string{"cik", "period", "agent_id"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "ta"\."snapshots"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, "ta.snapshots",
		[]string{"cik", "period", "agent_id"},
		[]string{"cik", "period"},
		[][]any{
			{"100", "2023", "computershare"},
			{"200", "2023", "equiniti"},
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL("ta.snapshots", "_stage_ta_snapshots",
		[]string{"cik", "period", "agent_id"}, []string{"cik", "period"})
	assert.Equal(t,
		`INSERT INTO "ta"."snapshots" ("cik", "period", "agent_id") `+
			`SELECT "cik", "period", "agent_id" FROM "_stage_ta_snapshots" `+
			`ON CONFLICT ("cik", "period") DO UPDATE SET "agent_id" = EXCLUDED."agent_id"`,
		got)
}

func TestUpsertSQL_AllColumnsAreKeys(t *testing.T) {
	got := upsertSQL("links", "_stage_links", []string{"a", "b"}, []string{"a", "b"})
	assert.Equal(t,
		`INSERT INTO "links" ("a", "b") SELECT "a", "b" FROM "_stage_links" `+
			`ON CONFLICT ("a", "b") DO NOTHING`,
		got)
}

func TestQuoteTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"ta.snapshots", `"ta"."snapshots"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, quoteTable(tt.input))
		})
	}
}
