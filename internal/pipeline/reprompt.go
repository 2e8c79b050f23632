package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// RepromptState tracks the controller's bounded retry loop.
type RepromptState string

const (
	RepromptPending   RepromptState = "pending"
	RepromptRetrying  RepromptState = "retrying"
	RepromptCorrected RepromptState = "corrected"
	RepromptFailed    RepromptState = "failed"
)

// ErrSchemaExhausted signals that every extraction attempt failed schema
// validation. The pipeline converts it to a terminal ledger reject; it is
// never escalated as a crash.
var ErrSchemaExhausted = errors.New("extraction schema attempts exhausted")

// RepromptController drives Stage B with error-aware retries: each retry
// embeds the previous attempt's schema violations in the prompt.
type RepromptController struct {
	gateway    *Gateway
	maxRetries int
}

// NewRepromptController creates a controller with the given retry bound.
// maxRetries counts retries after the first attempt.
func NewRepromptController(gateway *Gateway, maxRetries int) *RepromptController {
	return &RepromptController{gateway: gateway, maxRetries: maxRetries}
}

// Run performs extraction for ev. It returns the action with status valid
// (first-pass) or corrected (after ≥1 retry) together with the parsed
// payload, ErrSchemaExhausted once the bound is spent, or the gateway's
// error when the service itself is down.
func (c *RepromptController) Run(ctx context.Context, ev model.RawEvent) (*model.ExtractedAction, *model.Extraction, RepromptState, error) {
	state := RepromptPending
	var violations []string

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.gateway.Extract(ctx, ev.RawText, violations)
		if err != nil {
			return nil, nil, state, err
		}

		ext, parseErr := ParseExtraction(raw)
		if parseErr == nil {
			status := model.ValidationValid
			if state == RepromptRetrying {
				status = model.ValidationCorrected
				state = RepromptCorrected
			}
			action := BuildAction(ev.ID, ext, raw, status, attempt+1)
			return &action, ext, state, nil
		}

		var schemaErr *SchemaError
		if !errors.As(parseErr, &schemaErr) {
			return nil, nil, state, parseErr
		}
		violations = schemaErr.Violations
		state = RepromptRetrying

		zap.L().Warn("reprompt: schema validation failed",
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt+1),
			zap.Strings("violations", violations),
		)
	}

	return nil, nil, RepromptFailed, ErrSchemaExhausted
}
