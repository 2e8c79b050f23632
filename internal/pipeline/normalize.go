package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/dedup"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// immediateTokenKeywords hint at claim-live windows where speed matters.
// The hint rides along to delivery; it never influences filtering.
var immediateTokenKeywords = []string{
	"claim now",
	"claim live",
	"token live",
	"tge live",
	"airdrop live",
	"mint live",
	"instant reward",
	"redeem now",
}

// FromEnvelope converts a canonical source envelope into an immutable
// RawEvent with its content hash. Pure: no external state is touched.
func FromEnvelope(env model.Envelope) (model.RawEvent, error) {
	if strings.TrimSpace(env.RawText) == "" {
		return model.RawEvent{}, eris.New("normalize: envelope has empty raw_text")
	}
	if strings.TrimSpace(env.Source) == "" {
		return model.RawEvent{}, eris.New("normalize: envelope has empty source")
	}

	ingestedAt := env.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	externalID := env.ExternalID
	if externalID == "" {
		externalID = env.URL
	}

	return model.RawEvent{
		ID:             uuid.New().String(),
		SourceID:       env.Source,
		ExternalID:     externalID,
		Author:         env.Author,
		URL:            env.URL,
		RawText:        env.RawText,
		RawJSON:        env.RawJSON,
		ContentHash:    dedup.ContentHash(env.RawText),
		PublishedAt:    env.PublishedAt.UTC(),
		IngestedAt:     ingestedAt.UTC(),
		ImmediateToken: isImmediateToken(env.RawText),
	}, nil
}

func isImmediateToken(text string) bool {
	normalized := strings.ToLower(text)
	for _, kw := range immediateTokenKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
