package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ta-tracker/internal/model"
)

func textFiling(payload string) model.Filing {
	return model.Filing{
		CIK:       "320193",
		FormType:  "10-K",
		Accession: "0000320193-24-000001",
		Period:    "2023",
		Format:    model.FormatPlainText,
		Payload:   []byte(payload),
	}
}

func rawStrings(cands []model.MentionCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Raw
	}
	return out
}

func TestExtractTransferAgentIs(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(textFiling(
		"The transfer agent is Computershare Trust Company, N.A.\nOther text follows.",
	))

	require.NotEmpty(t, cands)
	assert.Contains(t, cands[0].Raw, "Computershare Trust Company")
	assert.Equal(t, "320193", cands[0].Filing.CIK)
	assert.NotEmpty(t, cands[0].Context)
}

func TestExtractServesAs(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(textFiling(
		"Continental Stock Transfer serves as our transfer agent and warrant agent.",
	))

	require.NotEmpty(t, cands)
	assert.Contains(t, rawStrings(cands)[0], "Continental Stock Transfer")
}

func TestExtractBrandDirect(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(textFiling(
		"Shareholders may contact Broadridge for account inquiries.",
	))

	require.Len(t, cands, 1)
	assert.Equal(t, "Broadridge", cands[0].Raw)
	assert.Equal(t, "brand-direct", cands[0].Method)
}

func TestExtractDeduplicatesPerPattern(t *testing.T) {
	e := New(Options{})
	payload := strings.Repeat("Our transfer agent is Equiniti Trust Company.\n", 3)
	cands := e.Extract(textFiling(payload))

	byMethod := make(map[string]int)
	for _, c := range cands {
		byMethod[c.Method]++
	}
	for method, n := range byMethod {
		assert.Equal(t, 1, n, "pattern %s should emit one candidate per filing", method)
	}
}

func TestExtractStripsHTMLEntities(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(textFiling(
		"The transfer agent is Computershare&nbsp;Trust&nbsp;Company.",
	))

	require.NotEmpty(t, cands)
	assert.NotContains(t, cands[0].Raw, "&nbsp;")
	assert.Contains(t, cands[0].Raw, "Computershare Trust Company")
}

func TestExtractNoMentions(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(textFiling(
		"This annual report discusses revenue, liquidity and risk factors only.",
	))
	assert.Empty(t, cands)
}

func TestExtractContextClamped(t *testing.T) {
	e := New(Options{ContextWindow: 20})
	payload := "transfer agent is VStock Transfer"
	cands := e.Extract(textFiling(payload))

	require.NotEmpty(t, cands)
	// Window larger than the document: context is the whole payload.
	assert.Equal(t, payload, cands[0].Context)
}

func TestExtractDeterministicOrder(t *testing.T) {
	e := New(Options{})
	payload := "Our transfer agent is Equiniti. Shareholders may also contact Computershare."

	first := e.Extract(textFiling(payload))
	second := e.Extract(textFiling(payload))
	assert.Equal(t, rawStrings(first), rawStrings(second))
}

const xbrlInstance = `<?xml version="1.0" encoding="utf-8"?>
<xbrl xmlns="http://www.xbrl.org/2003/instance"
      xmlns:dei="http://xbrl.sec.gov/dei/2024">
  <dei:EntityRegistrantName contextRef="c0">Example Corp</dei:EntityRegistrantName>
  <dei:EntityTransferAgentName contextRef="c0">Equiniti Trust Company, LLC</dei:EntityTransferAgentName>
  <dei:EntityTransferAgentCIK contextRef="c0">0001049108</dei:EntityTransferAgentCIK>
</xbrl>`

func xbrlFiling(payload string) model.Filing {
	f := textFiling(payload)
	f.Format = model.FormatXBRL
	return f
}

func TestExtractXBRLTaggedAgent(t *testing.T) {
	e := New(Options{})
	cands := e.Extract(xbrlFiling(xbrlInstance))

	require.Len(t, cands, 1)
	assert.Equal(t, "Equiniti Trust Company, LLC", cands[0].Raw)
	assert.Equal(t, "dei:EntityTransferAgentName", cands[0].Method)
	assert.Contains(t, cands[0].Context, "0001049108")
}

func TestExtractXBRLWithoutAgentTag(t *testing.T) {
	e := New(Options{})
	payload := `<?xml version="1.0"?>
<xbrl xmlns:dei="http://xbrl.sec.gov/dei/2024">
  <dei:EntityRegistrantName>Example Corp</dei:EntityRegistrantName>
</xbrl>`
	cands := e.Extract(xbrlFiling(payload))
	assert.Empty(t, cands)
}

func TestExtractXBRLIgnoresOtherNamespaces(t *testing.T) {
	e := New(Options{})
	payload := `<?xml version="1.0"?>
<xbrl xmlns:custom="http://example.com/custom/2024">
  <custom:EntityTransferAgentName>Not A Real Tag</custom:EntityTransferAgentName>
</xbrl>`
	cands := e.Extract(xbrlFiling(payload))
	assert.Empty(t, cands)
}

func TestExtractXBRLMalformedFallsBackToText(t *testing.T) {
	e := New(Options{})
	// Document truncated inside the agent element: the XBRL pass errors and
	// the text patterns still find the mention.
	payload := `<xbrl xmlns:dei="http://xbrl.sec.gov/dei/2024">` +
		`<dei:EntityTransferAgentName> our transfer agent is Computershare.`
	cands := e.Extract(xbrlFiling(payload))

	require.NotEmpty(t, cands)
	assert.Contains(t, cands[0].Raw, "Computershare")
}
