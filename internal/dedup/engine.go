package dedup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
)

// Index is the content-addressed canonical index the engine writes to.
// InsertCanonical must be atomic per content hash: concurrent writers of
// the same hash observe one entry, never two.
type Index interface {
	// InsertCanonical inserts ev as the canonical event for its content
	// hash if none exists, otherwise resolves the canonical holder by
	// earliest published_at (tie-break: smaller external_id). Returns the
	// canonical event and whether ev is it.
	InsertCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, error)

	InsertFingerprint(ctx context.Context, fp model.Fingerprint) error
	RecentFingerprints(ctx context.Context, sourceID string, from, to time.Time) ([]model.Fingerprint, error)
}

// Result is the fixed dedup contract consumed by the pipeline.
type Result struct {
	IsDuplicate bool    `json:"is_duplicate"`
	CanonicalID string  `json:"canonical_id"`
	Exact       bool    `json:"exact"`
	Similarity  float64 `json:"similarity,omitempty"`
}

// Engine performs exact-hash and near-duplicate detection.
type Engine struct {
	index      Index
	similarity Similarity
	cfg        config.DedupConfig
}

// NewEngine creates a dedup engine. A nil similarity selects Jaccard.
func NewEngine(index Index, similarity Similarity, cfg config.DedupConfig) *Engine {
	if similarity == nil {
		similarity = JaccardSimilarity{}
	}
	return &Engine{index: index, similarity: similarity, cfg: cfg}
}

// Check resolves ev against the canonical index. Index failures are
// classified transient so the caller parks the event instead of dropping
// it; a duplicate verdict short-circuits the rest of the pipeline.
func (e *Engine) Check(ctx context.Context, ev model.RawEvent) (Result, error) {
	canonical, isCanonical, err := e.index.InsertCanonical(ctx, ev)
	if err != nil {
		return Result{}, indexUnavailable(ctx, eris.Wrap(err, "dedup: insert canonical"))
	}

	if !isCanonical {
		zap.L().Debug("dedup: exact duplicate",
			zap.String("event_id", ev.ID),
			zap.String("canonical_id", canonical.ID),
		)
		return Result{IsDuplicate: true, CanonicalID: canonical.ID, Exact: true}, nil
	}

	// New content hash: look for a near-duplicate in the recent window
	// from the same source.
	fp := NewFingerprint(ev)
	window := time.Duration(e.cfg.WindowDays) * 24 * time.Hour
	recent, err := e.index.RecentFingerprints(ctx, ev.SourceID, ev.PublishedAt.Add(-window), ev.PublishedAt.Add(window))
	if err != nil {
		return Result{}, indexUnavailable(ctx, eris.Wrap(err, "dedup: recent fingerprints"))
	}

	bestID := ""
	bestScore := 0.0
	for _, candidate := range recent {
		if candidate.RawEventID == ev.ID {
			continue
		}
		// Simhash prefilter keeps the expensive comparison off obviously
		// unrelated texts.
		if HammingDistance(fp.Simhash, candidate.Simhash) > e.cfg.MaxHammingDistance {
			continue
		}
		if score := e.similarity.Compare(fp, candidate); score > bestScore {
			bestScore = score
			bestID = candidate.RawEventID
		}
	}

	if bestID != "" && bestScore > e.cfg.SimilarityThreshold {
		zap.L().Debug("dedup: near duplicate",
			zap.String("event_id", ev.ID),
			zap.String("canonical_id", bestID),
			zap.Float64("similarity", bestScore),
		)
		return Result{IsDuplicate: true, CanonicalID: bestID, Similarity: bestScore}, nil
	}

	if err := e.index.InsertFingerprint(ctx, fp); err != nil {
		return Result{}, indexUnavailable(ctx, eris.Wrap(err, "dedup: insert fingerprint"))
	}

	return Result{IsDuplicate: false, CanonicalID: ev.ID, Similarity: bestScore}, nil
}

// indexUnavailable marks an index failure transient so the event is
// parked for retry rather than dropped. Cancellation passes through
// unclassified.
func indexUnavailable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return resilience.NewTransientError(err, 0)
}
