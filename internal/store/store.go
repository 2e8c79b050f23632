// Package store persists raw events, decisions, extracted actions, and
// opportunities. Two implementations exist: sqlite for local runs and
// tests, postgres for production.
package store

import (
	"context"
	"time"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
)

// OpportunityFilter specifies criteria for listing opportunities.
type OpportunityFilter struct {
	MinScore float64             `json:"min_score,omitempty"`
	Priority model.PriorityLabel `json:"priority,omitempty"`
	Limit    int                 `json:"limit,omitempty"`
	Offset   int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the opportunity pipeline.
// It doubles as the dedup engine's Index and the ledger's Store.
type Store interface {
	// Canonical content-addressed index. InsertCanonical is atomic per
	// content hash: the first writer wins, later writers of the same hash
	// observe the canonical row. The canonical holder is the earliest
	// published event (tie-break: lexicographically smaller external id).
	InsertCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, error)
	GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error)
	InsertFingerprint(ctx context.Context, fp model.Fingerprint) error
	RecentFingerprints(ctx context.Context, sourceID string, from, to time.Time) ([]model.Fingerprint, error)

	// Decision ledger: append-only, one row per (event, stage).
	SaveDecision(ctx context.Context, d model.FilterDecision) error
	DecisionChain(ctx context.Context, rawEventID string) ([]model.FilterDecision, error)

	// Stage outputs committed atomically with their ledger rows, so a
	// mid-stage crash never leaves a half-recorded decision.
	SaveActionWithDecision(ctx context.Context, action model.ExtractedAction, d model.FilterDecision) error
	SaveOpportunityWithDecision(ctx context.Context, opp model.Opportunity, d model.FilterDecision) error

	GetExtractedAction(ctx context.Context, rawEventID string) (*model.ExtractedAction, error)
	ListExtractedActions(ctx context.Context, limit int) ([]model.ExtractedAction, error)
	SaveOpportunity(ctx context.Context, opp model.Opportunity) error
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error)

	// Reference data, read-only at pipeline time.
	SeedInvestorWeights(ctx context.Context, weights []model.InvestorWeight) error
	InvestorWeights(ctx context.Context) ([]model.InvestorWeight, error)
	SeedSources(ctx context.Context, sources []model.Source) error
	Sources(ctx context.Context) ([]model.Source, error)

	// Parked events: envelopes deferred because the index was unavailable.
	ParkEvent(ctx context.Context, entry resilience.ParkedEvent) error
	ParkedEvents(ctx context.Context, limit int) ([]resilience.ParkedEvent, error)
	DeleteParkedEvent(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
