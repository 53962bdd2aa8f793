package edgar

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/config"
	"github.com/sells-group/ta-tracker/internal/model"
)

// stubFetcher serves canned payloads by URL.
type stubFetcher struct {
	responses map[string]string
	requests  []string
}

func (s *stubFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	s.requests = append(s.requests, url)
	body, ok := s.responses[url]
	if !ok {
		return nil, eris.Errorf("stub: no response for %s", url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *stubFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	return 0, eris.New("stub: not implemented")
}

func (s *stubFetcher) DownloadIfChanged(ctx context.Context, url, etag string) (io.ReadCloser, string, bool, error) {
	body, err := s.Download(ctx, url)
	return body, "", true, err
}

const submissionsJSON = `{
  "cik": "320193",
  "filings": {
    "recent": {
      "accessionNumber": ["0000320193-24-000001", "0000320193-24-000002", "0000320193-23-000003"],
      "form": ["10-K", "8-K", "10-K"],
      "filingDate": ["2024-11-01", "2024-08-01", "2023-11-03"],
      "reportDate": ["2024-09-28", "2024-08-01", "2023-09-30"],
      "primaryDocument": ["aapl-20240928.htm", "aapl-8k.htm", "aapl-20230930.htm"],
      "isXBRL": [1, 0, 0]
    }
  }
}`

func newStubClient(responses map[string]string) (*Client, *stubFetcher) {
	f := &stubFetcher{responses: responses}
	return New(f, config.EDGARConfig{BaseURL: "https://www.sec.gov"}), f
}

func TestListAnnualFilings(t *testing.T) {
	c, _ := newStubClient(map[string]string{
		"https://data.sec.gov/submissions/CIK0000320193.json": submissionsJSON,
	})

	metas, err := c.ListAnnualFilings(context.Background(), "320193", 0, 0)
	require.NoError(t, err)
	require.Len(t, metas, 2, "8-K is not an annual form")
	assert.Equal(t, "0000320193-24-000001", metas[0].Accession)
	assert.Equal(t, "2024", metas[0].Period())
	assert.True(t, metas[0].IsXBRL)
	assert.Equal(t, "2023", metas[1].Period())
}

func TestListAnnualFilingsYearBounds(t *testing.T) {
	c, _ := newStubClient(map[string]string{
		"https://data.sec.gov/submissions/CIK0000320193.json": submissionsJSON,
	})

	metas, err := c.ListAnnualFilings(context.Background(), "320193", 2024, 2024)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "2024", metas[0].Period())
}

func TestListAnnualFilingsInvalidCIK(t *testing.T) {
	c, _ := newStubClient(nil)

	_, err := c.ListAnnualFilings(context.Background(), "not-a-cik", 0, 0)
	require.Error(t, err)
}

func TestFetchFilingPlainText(t *testing.T) {
	dir := "https://www.sec.gov/Archives/edgar/data/320193/000032019323000003"
	c, _ := newStubClient(map[string]string{
		dir + "/aapl-20230930.htm": "Our transfer agent is Computershare.",
	})

	filing, err := c.FetchFiling(context.Background(), FilingMeta{
		CIK:             "320193",
		Accession:       "0000320193-23-000003",
		FormType:        "10-K",
		FilingDate:      "2023-11-03",
		ReportDate:      "2023-09-30",
		PrimaryDocument: "aapl-20230930.htm",
	})
	require.NoError(t, err)
	assert.Equal(t, model.FormatPlainText, filing.Format)
	assert.Equal(t, "2023", filing.Period)
	assert.Contains(t, string(filing.Payload), "Computershare")
}

func TestFetchFilingPrefersXBRLInstance(t *testing.T) {
	dir := "https://www.sec.gov/Archives/edgar/data/320193/000032019324000001"
	c, f := newStubClient(map[string]string{
		dir + "/index.json":         `{"directory":{"item":[{"name":"aapl-20240928.htm"},{"name":"aapl-20240928_htm.xml"}]}}`,
		dir + "/aapl-20240928_htm.xml": `<xbrl/>`,
	})

	filing, err := c.FetchFiling(context.Background(), FilingMeta{
		CIK:             "320193",
		Accession:       "0000320193-24-000001",
		FormType:        "10-K",
		ReportDate:      "2024-09-28",
		PrimaryDocument: "aapl-20240928.htm",
		IsXBRL:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FormatXBRL, filing.Format)
	assert.Contains(t, filing.SourceURL, "_htm.xml")
	assert.Contains(t, f.requests, dir+"/index.json")
}

func TestFetchFilingXBRLDiscoveryFallsBack(t *testing.T) {
	dir := "https://www.sec.gov/Archives/edgar/data/320193/000032019324000001"
	c, _ := newStubClient(map[string]string{
		// index.json missing: discovery fails, primary document still fetched.
		dir + "/aapl-20240928.htm": "inline document",
	})

	filing, err := c.FetchFiling(context.Background(), FilingMeta{
		CIK:             "320193",
		Accession:       "0000320193-24-000001",
		PrimaryDocument: "aapl-20240928.htm",
		ReportDate:      "2024-09-28",
		IsXBRL:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FormatPlainText, filing.Format)
}

func TestPadCIK(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"320193", "0000320193", false},
		{"0000320193", "0000320193", false},
		{" 1750 ", "0000001750", false},
		{"", "", true},
		{"12a45", "", true},
		{"12345678901", "", true},
	}
	for _, tt := range tests {
		got, err := padCIK(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
