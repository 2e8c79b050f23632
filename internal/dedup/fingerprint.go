package dedup

import (
	"hash/fnv"
	"math/bits"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// Simhash64 computes a 64-bit simhash over the text's word tokens.
// Returns false when the text has no tokens.
func Simhash64(text string) (uint64, bool) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}

	var bitWeights [64]int
	for _, token := range tokens {
		h := hashToken64(token)
		for bit := 0; bit < 64; bit++ {
			if h&(uint64(1)<<bit) != 0 {
				bitWeights[bit]++
			} else {
				bitWeights[bit]--
			}
		}
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if bitWeights[bit] > 0 {
			result |= uint64(1) << bit
		}
	}
	return result, true
}

func hashToken64(token string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(token))
	return hasher.Sum64()
}

// HammingDistance counts differing bits between two simhashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NewFingerprint derives the similarity fingerprint for a raw event.
func NewFingerprint(ev model.RawEvent) model.Fingerprint {
	simhash, _ := Simhash64(ev.RawText)
	return model.Fingerprint{
		RawEventID:  ev.ID,
		SourceID:    ev.SourceID,
		Simhash:     simhash,
		Tokens:      Tokenize(ev.RawText),
		PublishedAt: ev.PublishedAt,
	}
}

// Similarity scores two fingerprints in [0,1]. The strategy is pluggable;
// the engine only depends on this interface.
type Similarity interface {
	Compare(a, b model.Fingerprint) float64
}

// JaccardSimilarity compares token sets. It is the default strategy: cheap,
// deterministic, and robust against word reordering in paraphrased posts.
type JaccardSimilarity struct{}

// Compare returns |A∩B| / |A∪B| over the two token sets.
func (JaccardSimilarity) Compare(a, b model.Fingerprint) float64 {
	if len(a.Tokens) == 0 || len(b.Tokens) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a.Tokens))
	for _, t := range a.Tokens {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b.Tokens))
	for _, t := range b.Tokens {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
