// Package extract scans filing payloads for transfer-agent mention candidates.
//
// Extraction is a single deterministic pass per filing with no side effects:
// the same payload always yields the same ordered candidate list. XBRL
// filings are read through their tagged DEI fields; anything else (and any
// XBRL document that fails to parse) goes through the plain-text patterns.
package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/model"
)

// DefaultContextWindow is the number of bytes captured on each side of a
// match for downstream disambiguation.
const DefaultContextWindow = 120

// textPattern is one plain-text extraction rule. Patterns are applied in
// order; the id travels with every candidate for provenance.
type textPattern struct {
	id    string
	re    *regexp.Regexp
	group int // submatch index holding the agent name, 0 = whole match
}

// The pattern set mirrors the phrasings issuers actually use in 10-K/10-Q
// boilerplate. Order matters: phrase-anchored patterns first, bare brand
// mentions last.
var textPatterns = []textPattern{
	{
		id:    "ta-is",
		re:    regexp.MustCompile(`(?i)(?:transfer\s+agent|registrar)\s*(?:is|:)\s*([^<\n\r]{3,120})`),
		group: 1,
	},
	{
		id:    "our-ta",
		re:    regexp.MustCompile(`(?i)our\s+transfer\s+agent(?:\s+and\s+registrar)?\s+is\s+([^<\n\r]{3,120})`),
		group: 1,
	},
	{
		id:    "serves-as",
		re:    regexp.MustCompile(`(?i)([^<>\n\r.;]{3,120}?)\s+serves\s+as\s+(?:our\s+|the\s+)?transfer\s+agent`),
		group: 1,
	},
	{
		id:    "ta-and-registrar",
		re:    regexp.MustCompile(`(?i)(?:transfer\s+agent\s+and\s+registrar|registrar\s+and\s+transfer\s+agent)\s*(?:is|:)\s*([^<\n\r]{3,120})`),
		group: 1,
	},
	{
		id:    "brand-direct",
		re:    regexp.MustCompile(`(?i)\b(computershare|broadridge|american\s+stock\s+transfer|equiniti|continental\s+stock|eq\s+shareowner|wells\s+fargo\s+shareowner|pacific\s+stock\s+transfer|vstock\s+transfer)\b`),
		group: 1,
	},
	{
		id:    "ast-variants",
		re:    regexp.MustCompile(`(?i)\b(american\s+stock\s+transfer|ast\s+(?:trust|&|and))\b`),
		group: 1,
	},
}

var (
	nbspRe      = regexp.MustCompile(`&nbsp;|&#160;`)
	junkCharsRe = regexp.MustCompile(`[^\w\s.,&()-]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Options configures extraction.
type Options struct {
	ContextWindow int
}

// Extractor produces mention candidates from filings.
type Extractor struct {
	window int
}

// New creates an Extractor. A zero context window uses the default.
func New(opts Options) *Extractor {
	w := opts.ContextWindow
	if w <= 0 {
		w = DefaultContextWindow
	}
	return &Extractor{window: w}
}

// Extract returns the ordered mention candidates found in one filing.
// Malformed XBRL degrades to plain-text extraction rather than failing the
// filing.
func (e *Extractor) Extract(f model.Filing) []model.MentionCandidate {
	if f.Format == model.FormatXBRL {
		cands, err := e.extractXBRL(f)
		if err == nil {
			return cands
		}
		zap.L().Warn("xbrl parse failed, falling back to text extraction",
			zap.String("cik", f.CIK),
			zap.String("accession", f.Accession),
			zap.Error(err),
		)
	}
	return e.extractText(f)
}

// extractText applies the fixed pattern set against the payload.
func (e *Extractor) extractText(f model.Filing) []model.MentionCandidate {
	text := string(f.Payload)
	ref := f.Ref()

	var out []model.MentionCandidate
	seen := make(map[string]bool)

	for _, p := range textPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			gi := 2 * p.group
			if gi+1 >= len(loc) || loc[gi] < 0 {
				continue
			}
			raw := cleanMatch(text[loc[gi]:loc[gi+1]])
			if raw == "" {
				continue
			}

			// One candidate per (pattern, cleaned string) per filing.
			key := p.id + "\x00" + strings.ToLower(raw)
			if seen[key] {
				continue
			}
			seen[key] = true

			out = append(out, model.MentionCandidate{
				Filing:  ref,
				Raw:     raw,
				Context: e.context(text, loc[0], loc[1]),
				Method:  p.id,
				Offset:  loc[gi],
			})
		}
	}
	return out
}

// context returns ±window bytes around the match, clamped to the document.
func (e *Extractor) context(text string, start, end int) string {
	lo := start - e.window
	if lo < 0 {
		lo = 0
	}
	hi := end + e.window
	if hi > len(text) {
		hi = len(text)
	}
	return spaceRe.ReplaceAllString(text[lo:hi], " ")
}

// cleanMatch strips HTML entities and stray characters from a raw capture.
// Captures shorter than 3 characters are not meaningful agent names.
func cleanMatch(s string) string {
	s = nbspRe.ReplaceAllString(s, " ")
	s = junkCharsRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return ""
	}
	return s
}
