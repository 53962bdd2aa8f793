// Package export writes the committed dataset to analyst-facing files:
// CSV for the time series, transitions and change log, XLSX for the review
// worksheet.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ta-tracker/internal/model"
)

// WriteSnapshotsCSV writes the committed time series, one row per
// (issuer, period), in the store's deterministic order.
func WriteSnapshotsCSV(w io.Writer, snaps []model.Snapshot) error {
	cw := csv.NewWriter(w)
	header := []string{"cik", "period", "agent_id", "confidence", "method", "filings", "resolved_at"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write snapshot header")
	}

	for _, s := range snaps {
		accessions := make([]string, 0, len(s.Filings))
		for _, f := range s.Filings {
			accessions = append(accessions, f.Accession)
		}
		row := []string{
			s.CIK,
			s.Period,
			s.AgentID,
			formatConfidence(s.Confidence),
			string(s.Method),
			strings.Join(accessions, ";"),
			s.ResolvedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write snapshot row %s/%s", s.CIK, s.Period)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush snapshots")
}

// WriteTransitionsCSV writes derived agent transitions.
func WriteTransitionsCSV(w io.Writer, transitions []model.Transition) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"cik", "period", "from_agent_id", "to_agent_id"}); err != nil {
		return eris.Wrap(err, "export: write transition header")
	}
	for _, t := range transitions {
		if err := cw.Write([]string{t.CIK, t.Period, t.FromAgentID, t.ToAgentID}); err != nil {
			return eris.Wrapf(err, "export: write transition row %s/%s", t.CIK, t.Period)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush transitions")
}

// WriteChangesCSV writes the merge change log.
func WriteChangesCSV(w io.Writer, entries []model.ChangeEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"kind", "cik", "period", "agent_id", "prev_agent_id", "confidence", "prev_confidence", "note", "at"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write change header")
	}
	for _, e := range entries {
		row := []string{
			string(e.Kind),
			e.CIK,
			e.Period,
			e.AgentID,
			e.PrevAgentID,
			formatConfidence(e.Confidence),
			formatConfidence(e.PrevConfidence),
			e.Note,
			e.At.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write change row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush changes")
}

func formatConfidence(c float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", c), "0"), ".")
}
