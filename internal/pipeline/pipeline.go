// Package pipeline turns source envelopes into scored opportunities:
// normalize → dedup → noise gate → extraction (with bounded reprompts) →
// rule validation → scoring, with every stage decision ledgered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/dedup"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/ledger"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/scorer"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
	"github.com/pokamal0y-ship-it/alpha-project-test1/pkg/claude"
)

// Status is the terminal outcome of processing one envelope.
type Status string

const (
	StatusScored    Status = "scored"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
	StatusParked    Status = "parked"
)

// Outcome reports how an envelope left the pipeline.
type Outcome struct {
	EventID     string             `json:"event_id"`
	Status      Status             `json:"status"`
	Stage       model.Stage        `json:"stage"`
	Reason      string             `json:"reason,omitempty"`
	Opportunity *model.Opportunity `json:"opportunity,omitempty"`
}

// Pipeline wires the stages together over a shared store and classifier.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	ledger    *ledger.Ledger
	dedup     *dedup.Engine
	gateway   *Gateway
	reprompt  *RepromptController
	validator *RuleValidator
	scorer    *scorer.Engine
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, client claude.Client, refs scorer.References) *Pipeline {
	gateway := NewGateway(client, cfg.Anthropic, cfg.Gate)
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		ledger:    ledger.New(st),
		dedup:     dedup.NewEngine(st, nil, cfg.Dedup),
		gateway:   gateway,
		reprompt:  NewRepromptController(gateway, cfg.Extraction.MaxReprompts),
		validator: NewRuleValidator(cfg.Validator),
		scorer:    scorer.NewEngine(cfg.Scoring, refs),
	}
}

// SpendUSD reports the model spend accumulated by this pipeline's gateway.
func (p *Pipeline) SpendUSD() float64 {
	return p.gateway.SpendUSD()
}

// SpendByStage reports the gateway spend broken down per stage.
func (p *Pipeline) SpendByStage() map[string]float64 {
	return p.gateway.SpendByStage()
}

// task carries one event between stages. Each event's stage sequence is
// strictly sequential; tasks are never shared across workers.
type task struct {
	ev      model.RawEvent
	gate    model.NoiseDecision
	action  model.ExtractedAction
	dropped int
}

// Process runs one envelope through every stage synchronously. It is the
// single processing path: the worker pools call the same stage methods.
func (p *Pipeline) Process(ctx context.Context, env model.Envelope) (*Outcome, error) {
	t, out, err := p.admit(ctx, env)
	if err != nil || out != nil {
		return out, err
	}

	if out, err = p.classify(ctx, t); err != nil || out != nil {
		return out, err
	}
	if out, err = p.extract(ctx, t); err != nil || out != nil {
		return out, err
	}
	if out, err = p.validate(ctx, t); err != nil || out != nil {
		return out, err
	}
	return p.score(ctx, t)
}

// admit normalizes the envelope and resolves it against the dedup index.
// Index unavailability parks the event instead of dropping it. A non-nil
// Outcome is terminal: duplicate, replayed-terminal, or parked.
func (p *Pipeline) admit(ctx context.Context, env model.Envelope) (*task, *Outcome, error) {
	ev, err := FromEnvelope(env)
	if err != nil {
		return nil, nil, err
	}

	res, err := p.dedup.Check(ctx, ev)
	if err != nil {
		if !resilience.IsTransient(err) {
			return nil, nil, err
		}
		if parkErr := p.park(ctx, env, err); parkErr != nil {
			return nil, nil, parkErr
		}
		return nil, &Outcome{EventID: ev.ID, Status: StatusParked, Stage: model.StageDedup, Reason: err.Error()}, nil
	}

	if res.IsDuplicate && res.Exact {
		canonical, err := p.store.GetRawEvent(ctx, res.CanonicalID)
		if err != nil {
			return nil, nil, eris.Wrap(err, "pipeline: load canonical event")
		}
		// Same logical event requeued (e.g. restart): resume under the
		// canonical identity instead of rejecting it as a duplicate.
		if canonical.SourceID == ev.SourceID && canonical.ExternalID == ev.ExternalID {
			term, err := p.ledger.Terminal(ctx, canonical.ID)
			if err != nil {
				return nil, nil, err
			}
			if term != nil {
				status := StatusRejected
				if term.Decision == model.DecisionInclude {
					status = StatusScored
				}
				return nil, &Outcome{EventID: canonical.ID, Status: status, Stage: term.Stage, Reason: term.Reason}, nil
			}
			ev = *canonical
			res.IsDuplicate = false
		}
	}

	if res.IsDuplicate {
		reason := model.ReasonDuplicate
		if !res.Exact {
			reason = model.ReasonNearDuplicate
		}
		reason = fmt.Sprintf("%s of %s", reason, res.CanonicalID)
		if err := p.ledger.Record(ctx, model.FilterDecision{
			RawEventID: ev.ID,
			Stage:      model.StageDedup,
			Decision:   model.DecisionReject,
			Reason:     reason,
		}); err != nil {
			return nil, nil, err
		}
		return nil, &Outcome{EventID: ev.ID, Status: StatusDuplicate, Stage: model.StageDedup, Reason: reason}, nil
	}

	if err := p.ledger.Record(ctx, model.FilterDecision{
		RawEventID: ev.ID,
		Stage:      model.StageDedup,
		Decision:   model.DecisionInclude,
		Reason:     "canonical",
	}); err != nil {
		return nil, nil, err
	}

	return &task{ev: ev}, nil, nil
}

// classify runs the Stage A noise gate. A reject (model verdict,
// confidence floor, or gateway exhaustion) is terminal: Stage B is never
// invoked for rejected events.
func (p *Pipeline) classify(ctx context.Context, t *task) (*Outcome, error) {
	decision, err := p.gateway.ClassifyNoise(ctx, t.ev.RawText)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		zap.L().Warn("pipeline: noise gate unavailable",
			zap.String("event_id", t.ev.ID),
			zap.Error(err),
		)
		return p.reject(ctx, t.ev.ID, model.StageNoiseGate, model.ReasonGatewayUnavailable, 0)
	}

	d := model.FilterDecision{
		RawEventID:      t.ev.ID,
		Stage:           model.StageNoiseGate,
		Decision:        decision.Decision,
		Reason:          decision.Reason,
		ModelName:       p.gateway.ModelName(),
		ModelConfidence: decision.Confidence,
		PromptVersion:   p.gateway.PromptVersion(),
	}
	if len(decision.NoiseFlags) > 0 {
		d.Reason = fmt.Sprintf("%s [flags: %v]", d.Reason, decision.NoiseFlags)
	}
	if d.Decision == model.DecisionInclude && d.Reason == "" {
		d.Reason = "passed noise gate"
	}
	if err := p.ledger.Record(ctx, d); err != nil {
		return nil, err
	}

	if decision.Decision == model.DecisionReject {
		return &Outcome{EventID: t.ev.ID, Status: StatusRejected, Stage: model.StageNoiseGate, Reason: d.Reason}, nil
	}

	t.gate = decision
	return nil, nil
}

// extract runs Stage B under the reprompt controller and persists the
// resulting action atomically with its ledger row.
func (p *Pipeline) extract(ctx context.Context, t *task) (*Outcome, error) {
	action, ext, state, err := p.reprompt.Run(ctx, t.ev)
	if err != nil {
		if errors.Is(err, ErrSchemaExhausted) {
			return p.reject(ctx, t.ev.ID, model.StageExtraction, model.ReasonExtractionSchemaExhausted, t.gate.Confidence)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		zap.L().Warn("pipeline: extraction gateway unavailable",
			zap.String("event_id", t.ev.ID),
			zap.Error(err),
		)
		return p.reject(ctx, t.ev.ID, model.StageExtraction, model.ReasonGatewayUnavailable, t.gate.Confidence)
	}

	d := model.FilterDecision{
		RawEventID:      t.ev.ID,
		Stage:           model.StageExtraction,
		ModelName:       p.gateway.ModelName(),
		ModelConfidence: t.gate.Confidence,
		PromptVersion:   p.cfg.Extraction.PromptVersion,
		CreatedAt:       time.Now().UTC(),
	}

	// Stage B can itself reject content that slipped through the gate.
	if ext.Decision == "reject" {
		d.Decision = model.DecisionReject
		d.Reason = model.ReasonModelReject
		if ext.Reason != "" {
			d.Reason = fmt.Sprintf("%s: %s", model.ReasonModelReject, ext.Reason)
		}
		action.ValidationStatus = model.ValidationInvalid
		if err := p.store.SaveActionWithDecision(ctx, *action, d); err != nil {
			return nil, eris.Wrap(err, "pipeline: save rejected action")
		}
		return &Outcome{EventID: t.ev.ID, Status: StatusRejected, Stage: model.StageExtraction, Reason: d.Reason}, nil
	}

	d.Decision = model.DecisionInclude
	d.Reason = string(action.ValidationStatus)
	if state == RepromptCorrected {
		d.Reason = fmt.Sprintf("corrected after %d attempts", action.Attempts)
	}
	if err := p.store.SaveActionWithDecision(ctx, *action, d); err != nil {
		return nil, eris.Wrap(err, "pipeline: save action")
	}

	t.action = *action
	return nil, nil
}

// validate applies the deterministic rule checks and persists the
// post-check action. The stored row must carry the evidence-filtered
// backing, not the raw Stage B claims: rescoring reads it back.
func (p *Pipeline) validate(ctx context.Context, t *task) (*Outcome, error) {
	outcome := p.validator.Validate(t.action, t.ev.RawText)

	d := model.FilterDecision{
		RawEventID: t.ev.ID,
		Stage:      model.StageValidation,
		Decision:   model.DecisionInclude,
		Reason:     outcome.LedgerReason(),
		CreatedAt:  time.Now().UTC(),
	}
	if !outcome.Passed {
		d.Decision = model.DecisionReject
		if err := p.ledger.Record(ctx, d); err != nil {
			return nil, err
		}
		return &Outcome{EventID: t.ev.ID, Status: StatusRejected, Stage: model.StageValidation, Reason: outcome.Reason}, nil
	}

	if err := p.store.SaveActionWithDecision(ctx, outcome.Action, d); err != nil {
		return nil, eris.Wrap(err, "pipeline: save validated action")
	}

	t.action = outcome.Action
	t.dropped = len(outcome.DroppedClaims)
	return nil, nil
}

// score computes the opportunity and commits it with the terminal ledger
// row in one transaction.
func (p *Pipeline) score(ctx context.Context, t *task) (*Outcome, error) {
	now := time.Now().UTC()
	res := p.scorer.Score(t.action, t.ev.SourceID, now)

	opp := model.Opportunity{
		ID:                 uuid.New().String(),
		RawEventID:         t.ev.ID,
		ProjectName:        t.action.ProjectName,
		RequiredAction:     t.action.RequiredAction,
		CostOfEntryUSD:     t.action.CostOfEntryUSD,
		VCBacking:          t.action.VCBacking,
		DeadlineAt:         t.action.DeadlineAt,
		Score:              res.Score,
		ScoreBreakdown:     res.Breakdown,
		LogicToProfitRatio: res.LogicToProfitRatio,
		Confidence:         scorer.Confidence(t.gate.Confidence, t.action.CostConfidence, t.dropped),
		Priority:           res.Priority,
		ImmediateToken:     t.ev.ImmediateToken,
		SourceURL:          t.ev.URL,
		CreatedAt:          now,
	}

	d := model.FilterDecision{
		RawEventID:      t.ev.ID,
		Stage:           model.StageScoring,
		Decision:        model.DecisionInclude,
		Reason:          model.ReasonScored,
		ModelConfidence: t.gate.Confidence,
		CreatedAt:       now,
	}
	if err := p.store.SaveOpportunityWithDecision(ctx, opp, d); err != nil {
		return nil, eris.Wrap(err, "pipeline: save opportunity")
	}

	zap.L().Info("pipeline: opportunity scored",
		zap.String("event_id", t.ev.ID),
		zap.String("project", opp.ProjectName),
		zap.Float64("score", opp.Score),
		zap.String("priority", string(opp.Priority)),
	)

	return &Outcome{EventID: t.ev.ID, Status: StatusScored, Stage: model.StageScoring, Reason: model.ReasonScored, Opportunity: &opp}, nil
}

// reject records a terminal reject and returns the matching outcome.
func (p *Pipeline) reject(ctx context.Context, eventID string, stage model.Stage, reason string, confidence float64) (*Outcome, error) {
	d := model.FilterDecision{
		RawEventID:      eventID,
		Stage:           stage,
		Decision:        model.DecisionReject,
		Reason:          reason,
		ModelName:       p.gateway.ModelName(),
		ModelConfidence: confidence,
		PromptVersion:   p.gateway.PromptVersion(),
	}
	if err := p.ledger.Record(ctx, d); err != nil {
		return nil, err
	}
	return &Outcome{EventID: eventID, Status: StatusRejected, Stage: stage, Reason: reason}, nil
}

// park defers an envelope whose admission failed transiently.
func (p *Pipeline) park(ctx context.Context, env model.Envelope, cause error) error {
	now := time.Now().UTC()
	entry := resilience.ParkedEvent{
		ID:          uuid.New().String(),
		Envelope:    env,
		Error:       cause.Error(),
		ErrorType:   resilience.ClassifyError(cause),
		MaxRetries:  5,
		NextRetryAt: now.Add(time.Minute),
		CreatedAt:   now,
		LastTriedAt: now,
	}
	if err := p.store.ParkEvent(ctx, entry); err != nil {
		return eris.Wrap(err, "pipeline: park event")
	}
	zap.L().Warn("pipeline: event parked",
		zap.String("source", env.Source),
		zap.String("external_id", env.ExternalID),
		zap.Error(cause),
	)
	return nil
}
