package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Airdrop LIVE", "airdrop live"},
		{"collapses whitespace", "claim   your\t\ttokens\n\nnow", "claim your tokens now"},
		{"trims", "  testnet launch  ", "testnet launch"},
		{"strips control runes", "bridge\x00 funds\a today", "bridge funds today"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestContentHash_EquivalentTexts(t *testing.T) {
	a := ContentHash("Testnet X is LIVE — bridge $50 to Arbitrum")
	b := ContentHash("  testnet x is live — bridge $50   to arbitrum ")
	assert.Equal(t, a, b)

	c := ContentHash("testnet y is live — bridge $50 to arbitrum")
	assert.NotEqual(t, a, c)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Bridge $50 to Arbitrum, claim by 2025-03-01!")
	assert.Equal(t, []string{"bridge", "50", "to", "arbitrum", "claim", "by", "2025", "03", "01"}, tokens)

	assert.Nil(t, Tokenize("   "))
}
