package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/model"
)

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteSnapshotsCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSnapshotsCSV(&buf, []model.Snapshot{
		{
			CIK:        "100",
			Period:     "2023",
			AgentID:    "computershare",
			Confidence: 0.95,
			Method:     model.MatchExactAlias,
			Filings: []model.FilingRef{
				{CIK: "100", Accession: "acc-1", FormType: "10-K"},
				{CIK: "100", Accession: "acc-2", FormType: "10-K/A"},
			},
			ResolvedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	rows := parseCSV(t, &buf)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"cik", "period", "agent_id", "confidence", "method", "filings", "resolved_at"}, rows[0])
	assert.Equal(t, []string{"100", "2023", "computershare", "0.95", "exact-alias", "acc-1;acc-2", "2024-05-01T12:30:00Z"}, rows[1])
}

func TestWriteSnapshotsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshotsCSV(&buf, nil))

	rows := parseCSV(t, &buf)
	assert.Len(t, rows, 1, "header only")
}

func TestWriteTransitionsCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTransitionsCSV(&buf, []model.Transition{
		{CIK: "100", Period: "2022", FromAgentID: "computershare", ToAgentID: "equiniti"},
	})
	require.NoError(t, err)

	rows := parseCSV(t, &buf)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"100", "2022", "computershare", "equiniti"}, rows[1])
}

func TestWriteChangesCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteChangesCSV(&buf, []model.ChangeEntry{
		{
			Kind:           model.ChangeReplace,
			CIK:            "100",
			Period:         "2023",
			AgentID:        "equiniti",
			PrevAgentID:    "computershare",
			Confidence:     1,
			PrevConfidence: 0.8,
			Note:           "confidence raised",
			At:             time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	rows := parseCSV(t, &buf)
	require.Len(t, rows, 2)
	assert.Equal(t, "replace", rows[1][0])
	assert.Equal(t, "1", rows[1][5], "trailing zeros trimmed")
	assert.Equal(t, "0.8", rows[1][6])
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{0.5, "0.5"},
		{0.8571, "0.8571"},
		{0.90000001, "0.9"},
		{0, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatConfidence(tt.in))
	}
}
