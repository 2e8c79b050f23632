// Package dedup implements exact and near-duplicate detection over
// normalized announcement text: a content-addressed canonical index plus
// a simhash/Jaccard similarity fingerprint.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText case-folds, collapses whitespace runs to single spaces,
// and strips control runes. The content hash is computed over this form,
// so two posts differing only in casing or spacing collapse to one event.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// ContentHash returns the hex sha256 digest of the normalized text.
func ContentHash(rawText string) string {
	sum := sha256.Sum256([]byte(NormalizeText(rawText)))
	return hex.EncodeToString(sum[:])
}

// Tokenize splits normalized text into letter/number word tokens.
func Tokenize(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
