package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
)

// memIndex is an in-memory Index for engine tests.
type memIndex struct {
	byHash       map[string]model.RawEvent
	fingerprints []model.Fingerprint
	failInsert   error
}

func newMemIndex() *memIndex {
	return &memIndex{byHash: make(map[string]model.RawEvent)}
}

func (m *memIndex) InsertCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, error) {
	if m.failInsert != nil {
		return nil, false, m.failInsert
	}
	if existing, ok := m.byHash[ev.ContentHash]; ok {
		return &existing, false, nil
	}
	m.byHash[ev.ContentHash] = ev
	return &ev, true, nil
}

func (m *memIndex) InsertFingerprint(ctx context.Context, fp model.Fingerprint) error {
	m.fingerprints = append(m.fingerprints, fp)
	return nil
}

func (m *memIndex) RecentFingerprints(ctx context.Context, sourceID string, from, to time.Time) ([]model.Fingerprint, error) {
	var out []model.Fingerprint
	for _, fp := range m.fingerprints {
		if fp.SourceID != sourceID {
			continue
		}
		if fp.PublishedAt.Before(from) || fp.PublishedAt.After(to) {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

func testDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		SimilarityThreshold: 0.85,
		WindowDays:          7,
		MaxHammingDistance:  prefilterOff,
	}
}

// prefilterOff disables the simhash prefilter so similarity tests
// exercise the Jaccard confirmation directly.
const prefilterOff = 64

func testEvent(id, source, text string, published time.Time) model.RawEvent {
	return model.RawEvent{
		ID:          id,
		SourceID:    source,
		RawText:     text,
		ContentHash: ContentHash(text),
		PublishedAt: published,
	}
}

func TestEngine_FirstEventIsCanonical(t *testing.T) {
	engine := NewEngine(newMemIndex(), nil, testDedupConfig())
	ctx := context.Background()

	res, err := engine.Check(ctx, testEvent("ev-1", "twitter", "Testnet X live, bridge $50", time.Now()))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, "ev-1", res.CanonicalID)
}

func TestEngine_ExactDuplicate(t *testing.T) {
	index := newMemIndex()
	engine := NewEngine(index, nil, testDedupConfig())
	ctx := context.Background()
	now := time.Now()

	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", "Testnet X live, bridge $50", now))
	require.NoError(t, err)

	// Same content, different casing and spacing.
	res, err := engine.Check(ctx, testEvent("ev-2", "discord", "testnet x LIVE,   bridge $50", now))
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.True(t, res.Exact)
	assert.Equal(t, "ev-1", res.CanonicalID)
}

func TestEngine_NearDuplicateAboveThreshold(t *testing.T) {
	index := newMemIndex()
	engine := NewEngine(index, nil, testDedupConfig())
	ctx := context.Background()
	now := time.Now()

	first := "project zeta testnet live bridge funds to arbitrum claim rewards before march first deadline approaching fast everyone"
	// One word differs out of a large shared set: Jaccard well above 0.85.
	second := "project zeta testnet live bridge funds to arbitrum claim rewards before march first deadline approaching fast anyone"

	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", first, now))
	require.NoError(t, err)

	res, err := engine.Check(ctx, testEvent("ev-2", "twitter", second, now.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.False(t, res.Exact)
	assert.Equal(t, "ev-1", res.CanonicalID)
	assert.Greater(t, res.Similarity, 0.85)
}

func TestEngine_SimilarityAtThresholdPasses(t *testing.T) {
	index := newMemIndex()
	cfg := testDedupConfig()
	cfg.SimilarityThreshold = 0.75
	engine := NewEngine(index, nil, cfg)
	ctx := context.Background()
	now := time.Now()

	// Token sets with Jaccard exactly 3/4 = 0.75: not strictly greater,
	// so both events survive.
	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", "bridge funds now", now))
	require.NoError(t, err)

	res, err := engine.Check(ctx, testEvent("ev-2", "twitter", "bridge funds today now", now))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	assert.InDelta(t, 0.75, res.Similarity, 1e-9)
}

func TestEngine_DifferentSourceNotCompared(t *testing.T) {
	index := newMemIndex()
	engine := NewEngine(index, nil, testDedupConfig())
	ctx := context.Background()
	now := time.Now()

	text := "project zeta testnet live bridge funds claim rewards deadline approaching"
	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", text, now))
	require.NoError(t, err)

	res, err := engine.Check(ctx, testEvent("ev-2", "discord", text+" everyone", now))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestEngine_OutsideWindowNotCompared(t *testing.T) {
	index := newMemIndex()
	engine := NewEngine(index, nil, testDedupConfig())
	ctx := context.Background()
	now := time.Now()

	text := "project zeta testnet live bridge funds claim rewards deadline approaching"
	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", text, now))
	require.NoError(t, err)

	res, err := engine.Check(ctx, testEvent("ev-2", "twitter", text+" everyone", now.Add(8*24*time.Hour)))
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestEngine_IndexErrorIsTransient(t *testing.T) {
	index := newMemIndex()
	index.failInsert = eris.New("index down")
	engine := NewEngine(index, nil, testDedupConfig())

	_, err := engine.Check(context.Background(), testEvent("ev-1", "twitter", "text here", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert canonical")
	// The caller parks on transient errors instead of dropping the event.
	assert.True(t, resilience.IsTransient(err))
}

func TestEngine_IndexErrorAfterCancelStaysRaw(t *testing.T) {
	index := newMemIndex()
	index.failInsert = eris.New("query aborted")
	engine := NewEngine(index, nil, testDedupConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Check(ctx, testEvent("ev-1", "twitter", "text here", time.Now()))
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
