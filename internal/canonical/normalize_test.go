package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple uppercase", "Computershare", "COMPUTERSHARE"},
		{"strips inc suffix", "VStock Transfer, Inc.", "VSTOCK TRANSFER"},
		{"strips llc suffix", "Broadridge Corporate Issuer Solutions, LLC", "BROADRIDGE CORPORATE ISSUER SOLUTIONS"},
		{"strips stacked suffixes", "Computershare Trust Company, N.A.", "COMPUTERSHARE TRUST COMPANY"},
		{"strips fsb", "Equiniti Trust Company, FSB", "EQUINITI TRUST COMPANY"},
		{"ampersand to and", "American Stock Transfer & Trust Company", "AMERICAN STOCK TRANSFER AND TRUST COMPANY"},
		{"dash to space", "High-Fidelity", "HIGH FIDELITY"},
		{"collapses whitespace", "  Continental   Stock  Transfer ", "CONTINENTAL STOCK TRANSFER"},
		{"folds accents", "Société Générale", "SOCIETE GENERALE"},
		{"drops quotes and parens", `"Pacific" Stock Transfer (Nevada)`, "PACIFIC STOCK TRANSFER NEVADA"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Computershare Trust Company, N.A.",
		"American Stock Transfer & Trust Company, LLC",
		"Équiniti",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestTokens(t *testing.T) {
	assert.Nil(t, tokens(""))
	assert.Equal(t, []string{"COMPUTERSHARE"}, tokens("COMPUTERSHARE"))
	assert.Equal(t, []string{"HIGH", "FIDELITY"}, tokens("HIGH FIDELITY"))
}
