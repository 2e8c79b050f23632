package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/dedup"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

func TestFromEnvelope(t *testing.T) {
	published := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	ingested := time.Date(2026, 2, 10, 12, 5, 0, 0, time.UTC)

	ev, err := FromEnvelope(model.Envelope{
		Source:      "twitter",
		ExternalID:  "tw-123",
		Author:      "@proj",
		URL:         "https://x.com/proj/status/123",
		RawText:     "Testnet X: bridge $50 to Arbitrum",
		PublishedAt: published,
		IngestedAt:  ingested,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "twitter", ev.SourceID)
	assert.Equal(t, "tw-123", ev.ExternalID)
	assert.Equal(t, dedup.ContentHash("Testnet X: bridge $50 to Arbitrum"), ev.ContentHash)
	assert.Equal(t, published, ev.PublishedAt)
	assert.Equal(t, ingested, ev.IngestedAt)
	assert.False(t, ev.ImmediateToken)
}

func TestFromEnvelope_Validation(t *testing.T) {
	_, err := FromEnvelope(model.Envelope{Source: "twitter", RawText: "   "})
	assert.Error(t, err)

	_, err = FromEnvelope(model.Envelope{Source: "", RawText: "some text"})
	assert.Error(t, err)
}

func TestFromEnvelope_ExternalIDFallsBackToURL(t *testing.T) {
	ev, err := FromEnvelope(model.Envelope{
		Source:  "project_blog",
		URL:     "https://blog.example.com/post-1",
		RawText: "announcement text",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com/post-1", ev.ExternalID)
}

func TestFromEnvelope_DefaultsIngestedAt(t *testing.T) {
	before := time.Now().UTC()
	ev, err := FromEnvelope(model.Envelope{Source: "discord", RawText: "announcement text"})
	require.NoError(t, err)
	assert.False(t, ev.IngestedAt.Before(before))
}

func TestIsImmediateToken(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Airdrop LIVE: claim now at app.example.com", true},
		{"TGE live in 1 hour", true},
		{"Mint live on Base", true},
		{"Testnet X: bridge $50 to Arbitrum by March", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isImmediateToken(tt.text), tt.text)
	}
}

func TestFromEnvelope_UniqueIDs(t *testing.T) {
	env := model.Envelope{Source: "twitter", RawText: "same text"}
	a, err := FromEnvelope(env)
	require.NoError(t, err)
	b, err := FromEnvelope(env)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}
