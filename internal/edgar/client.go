// Package edgar downloads issuer filing lists and filing payloads from SEC
// EDGAR. All requests go through the shared rate-limited fetcher; the SEC
// requires a descriptive User-Agent and caps request rates.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/config"
	"github.com/sells-group/ta-tracker/internal/fetcher"
	"github.com/sells-group/ta-tracker/internal/model"
)

// annualForms are the form types carrying transfer-agent disclosures for the
// tracker. Amendments refile the full document, so they count too.
var annualForms = map[string]bool{
	"10-K":   true,
	"10-K/A": true,
	"20-F":   true,
	"40-F":   true,
}

// Client lists and fetches filings for issuers.
type Client struct {
	fetcher fetcher.Fetcher
	baseURL string
	dataURL string
	log     *zap.Logger
}

// New creates an EDGAR client over the given fetcher.
func New(f fetcher.Fetcher, cfg config.EDGARConfig) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://www.sec.gov"
	}
	return &Client{
		fetcher: f,
		baseURL: base,
		dataURL: "https://data.sec.gov",
		log:     zap.L().With(zap.String("component", "edgar")),
	}
}

// FilingMeta identifies one filing in an issuer's submission index.
type FilingMeta struct {
	CIK             string
	Accession       string
	FormType        string
	FilingDate      string // YYYY-MM-DD
	ReportDate      string // YYYY-MM-DD
	PrimaryDocument string
	IsXBRL          bool
}

// Period returns the reporting period the filing covers, taken from the
// report date year (fiscal-year end), falling back to the filing date.
func (m FilingMeta) Period() string {
	if len(m.ReportDate) >= 4 {
		return m.ReportDate[:4]
	}
	if len(m.FilingDate) >= 4 {
		return m.FilingDate[:4]
	}
	return ""
}

// submissionsDoc mirrors the data.sec.gov per-issuer submissions index. The
// index stores filings column-wise: parallel arrays indexed together.
type submissionsDoc struct {
	CIK     string `json:"cik"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			PrimaryDocument []string `json:"primaryDocument"`
			IsXBRL          []int    `json:"isXBRL"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListAnnualFilings returns the issuer's annual-report filings, newest first,
// optionally bounded to report years [fromYear, toYear] (0 means unbounded).
func (c *Client) ListAnnualFilings(ctx context.Context, cik string, fromYear, toYear int) ([]FilingMeta, error) {
	padded, err := padCIK(cik)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.dataURL, padded)
	body, err := c.fetcher.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: fetch submissions for %s", cik)
	}
	defer body.Close() //nolint:errcheck

	var doc submissionsDoc
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, eris.Wrapf(err, "edgar: decode submissions for %s", cik)
	}

	recent := doc.Filings.Recent
	var metas []FilingMeta
	for i, form := range recent.Form {
		if !annualForms[form] {
			continue
		}
		meta := FilingMeta{
			CIK:       strings.TrimLeft(padded, "0"),
			Accession: at(recent.AccessionNumber, i),
			FormType:  form,
		}
		meta.FilingDate = at(recent.FilingDate, i)
		meta.ReportDate = at(recent.ReportDate, i)
		meta.PrimaryDocument = at(recent.PrimaryDocument, i)
		if i < len(recent.IsXBRL) {
			meta.IsXBRL = recent.IsXBRL[i] == 1
		}

		if year := yearOf(meta.Period()); year != 0 {
			if fromYear != 0 && year < fromYear {
				continue
			}
			if toYear != 0 && year > toYear {
				continue
			}
		}
		metas = append(metas, meta)
	}

	c.log.Debug("listed annual filings",
		zap.String("cik", cik),
		zap.Int("count", len(metas)),
	)
	return metas, nil
}

// FetchFiling downloads a filing's payload. When EDGAR generated an extracted
// XBRL instance for the filing, that instance is fetched and the filing is
// tagged FormatXBRL; otherwise the primary document text is used.
func (c *Client) FetchFiling(ctx context.Context, meta FilingMeta) (*model.Filing, error) {
	dir := fmt.Sprintf("%s/Archives/edgar/data/%s/%s",
		c.baseURL, meta.CIK, strings.ReplaceAll(meta.Accession, "-", ""))

	format := model.FormatPlainText
	docURL := dir + "/" + meta.PrimaryDocument
	if meta.IsXBRL {
		if instance, err := c.findInstance(ctx, dir); err != nil {
			c.log.Warn("xbrl instance discovery failed, using primary document",
				zap.String("accession", meta.Accession),
				zap.Error(err),
			)
		} else if instance != "" {
			format = model.FormatXBRL
			docURL = dir + "/" + instance
		}
	}

	body, err := c.fetcher.Download(ctx, docURL)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: fetch filing %s", meta.Accession)
	}
	defer body.Close() //nolint:errcheck

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: read filing %s", meta.Accession)
	}

	return &model.Filing{
		CIK:        meta.CIK,
		FormType:   meta.FormType,
		Accession:  meta.Accession,
		FilingDate: meta.FilingDate,
		Period:     meta.Period(),
		Format:     format,
		SourceURL:  docURL,
		Payload:    payload,
	}, nil
}

// indexDoc mirrors the per-accession index.json directory listing.
type indexDoc struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
		} `json:"item"`
	} `json:"directory"`
}

// findInstance returns the extracted XBRL instance filename in the accession
// directory, or "" when EDGAR generated none.
func (c *Client) findInstance(ctx context.Context, dir string) (string, error) {
	body, err := c.fetcher.Download(ctx, dir+"/index.json")
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck

	var doc indexDoc
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return "", eris.Wrap(err, "edgar: decode directory index")
	}

	for _, item := range doc.Directory.Item {
		if strings.HasSuffix(item.Name, "_htm.xml") {
			return item.Name, nil
		}
	}
	return "", nil
}

// padCIK zero-pads a CIK to the 10 digits data.sec.gov expects.
func padCIK(cik string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		return "", eris.Errorf("edgar: invalid CIK %q", cik)
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return "", eris.Errorf("edgar: invalid CIK %q", cik)
		}
	}
	if len(trimmed) > 10 {
		return "", eris.Errorf("edgar: invalid CIK %q", cik)
	}
	return strings.Repeat("0", 10-len(trimmed)) + trimmed, nil
}

func at(xs []string, i int) string {
	if i < len(xs) {
		return xs[i]
	}
	return ""
}

func yearOf(period string) int {
	if len(period) != 4 {
		return 0
	}
	year := 0
	for _, r := range period {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}
