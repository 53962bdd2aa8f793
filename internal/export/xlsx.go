package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ta-tracker/internal/model"
)

// WriteReviewXLSX writes pending review items to a workbook for offline
// adjudication. The Items sheet has one row per (issuer, period); the
// Evidence sheet lists every competing candidate with its source filing and
// surrounding text.
func WriteReviewXLSX(path string, items []model.ReviewItem) error {
	f := xlsx.NewFile()

	itemSheet, err := f.AddSheet("Items")
	if err != nil {
		return eris.Wrap(err, "export: add items sheet")
	}
	addRow(itemSheet, "cik", "period", "candidates", "top_agent", "top_confidence", "created_at")
	for _, item := range items {
		top := ""
		topConf := ""
		if len(item.Groups) > 0 {
			top = item.Groups[0].AgentID
			topConf = formatConfidence(item.Groups[0].Confidence)
		}
		addRow(itemSheet,
			item.CIK,
			item.Period,
			strconv.Itoa(len(item.Groups)),
			top,
			topConf,
			item.CreatedAt.UTC().Format("2006-01-02"),
		)
	}

	evidenceSheet, err := f.AddSheet("Evidence")
	if err != nil {
		return eris.Wrap(err, "export: add evidence sheet")
	}
	addRow(evidenceSheet, "cik", "period", "agent_id", "confidence", "raw", "pattern", "match_method", "form", "accession", "context")
	for _, item := range items {
		for _, g := range item.Groups {
			for _, c := range g.Candidates {
				addRow(evidenceSheet,
					item.CIK,
					item.Period,
					g.AgentID,
					formatConfidence(c.Confidence),
					c.Raw,
					c.MentionCandidate.Method,
					string(c.Method),
					c.Filing.FormType,
					c.Filing.Accession,
					c.Context,
				)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save review workbook %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
