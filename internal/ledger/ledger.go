// Package ledger records and reads the append-only audit trail of stage
// decisions. Every event's terminal outcome is explainable from its chain.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// Store is the persistence surface the ledger needs.
type Store interface {
	SaveDecision(ctx context.Context, d model.FilterDecision) error
	DecisionChain(ctx context.Context, rawEventID string) ([]model.FilterDecision, error)
}

// Ledger writes and reads filter decisions.
type Ledger struct {
	store Store
}

// New creates a Ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends one stage decision. CreatedAt is stamped here when unset
// so callers can construct decisions without caring about clocks.
func (l *Ledger) Record(ctx context.Context, d model.FilterDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := l.store.SaveDecision(ctx, d); err != nil {
		return eris.Wrapf(err, "ledger: record %s/%s", d.RawEventID, d.Stage)
	}

	zap.L().Info("ledger: decision recorded",
		zap.String("event_id", d.RawEventID),
		zap.String("stage", string(d.Stage)),
		zap.String("decision", string(d.Decision)),
		zap.String("reason", d.Reason),
	)
	return nil
}

// Chain returns the full decision chain for an event in stage order.
func (l *Ledger) Chain(ctx context.Context, rawEventID string) ([]model.FilterDecision, error) {
	chain, err := l.store.DecisionChain(ctx, rawEventID)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: chain %s", rawEventID)
	}
	return chain, nil
}

// WhyRejected returns the terminal reject reason for an event, or ""
// when the event was not rejected.
func (l *Ledger) WhyRejected(ctx context.Context, rawEventID string) (string, error) {
	chain, err := l.Chain(ctx, rawEventID)
	if err != nil {
		return "", err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Decision == model.DecisionReject {
			return chain[i].Reason, nil
		}
	}
	return "", nil
}

// WhyIncluded returns the per-stage include reasons for an event that made
// it through scoring, or nil when the event never reached a terminal include.
func (l *Ledger) WhyIncluded(ctx context.Context, rawEventID string) ([]string, error) {
	chain, err := l.Chain(ctx, rawEventID)
	if err != nil {
		return nil, err
	}
	scored := false
	reasons := make([]string, 0, len(chain))
	for _, d := range chain {
		if d.Decision != model.DecisionInclude {
			return nil, nil
		}
		reasons = append(reasons, string(d.Stage)+": "+d.Reason)
		if d.Stage == model.StageScoring {
			scored = true
		}
	}
	if !scored {
		return nil, nil
	}
	return reasons, nil
}

// Terminal returns the event's terminal decision, or nil when the event
// is still mid-pipeline. Replayed events short-circuit on this.
func (l *Ledger) Terminal(ctx context.Context, rawEventID string) (*model.FilterDecision, error) {
	chain, err := l.Chain(ctx, rawEventID)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Terminal() {
			d := chain[i]
			return &d, nil
		}
	}
	return nil, nil
}
