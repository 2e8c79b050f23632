package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/cost"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
	"github.com/pokamal0y-ship-it/alpha-project-test1/pkg/claude"
)

// Gateway is the uniform request/response boundary to the external
// classifier. It owns timeouts, rate limiting, retry with backoff, and
// the Stage A confidence floor.
type Gateway struct {
	client  claude.Client
	limiter *rate.Limiter
	spend   *cost.Tracker
	aiCfg   config.AnthropicConfig
	gateCfg config.GateConfig
}

// NewGateway creates a classification gateway.
func NewGateway(client claude.Client, aiCfg config.AnthropicConfig, gateCfg config.GateConfig) *Gateway {
	rps := aiCfg.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}
	return &Gateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		spend:   cost.NewTracker(cost.DefaultRates()),
		aiCfg:   aiCfg,
		gateCfg: gateCfg,
	}
}

// retryConfig builds the bounded backoff policy for gateway calls.
// Only AI-service failures are retried; everything else fails fast.
func (g *Gateway) retryConfig(operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = g.aiCfg.MaxAttempts
	cfg.ShouldRetry = resilience.IsAIServiceError
	cfg.OnRetry = resilience.RetryLogger("claude", operation)
	return cfg
}

// call performs one rate-limited, timeout-bounded model invocation. A
// timeout or transport failure is an AIServiceError, identical to a
// malformed response from the retry policy's point of view.
func (g *Gateway) call(ctx context.Context, operation, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "gateway: rate limit wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.aiCfg.Timeout())
	defer cancel()

	resp, err := g.client.CreateMessage(callCtx, claude.MessageRequest{
		Model:     g.aiCfg.Model,
		MaxTokens: 1024,
		System:    system,
		Messages:  []claude.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", resilience.NewAIServiceError(err, operation)
	}

	resp.Usage.LogUsage(g.aiCfg.Model, operation)
	g.spend.Record(operation, g.aiCfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.Text(), nil
}

// SpendUSD reports the accumulated model spend for this gateway.
func (g *Gateway) SpendUSD() float64 {
	return g.spend.Total()
}

// SpendByStage breaks the accumulated spend down per pipeline stage.
func (g *Gateway) SpendByStage() map[string]float64 {
	return g.spend.ByStage()
}

// ClassifyNoise runs Stage A. A response below the confidence floor is
// forced to reject regardless of its stated decision. A malformed
// response is an AIServiceError, retried up to the attempt bound; the
// returned error then signals gateway exhaustion to the caller.
func (g *Gateway) ClassifyNoise(ctx context.Context, rawText string) (model.NoiseDecision, error) {
	decision, err := resilience.DoVal(ctx, g.retryConfig("noise_gate"), func(ctx context.Context) (model.NoiseDecision, error) {
		text, err := g.call(ctx, "noise_gate", noiseGateSystemPrompt, fmt.Sprintf(noiseGateUserPrompt, rawText))
		if err != nil {
			return model.NoiseDecision{}, err
		}
		return parseNoiseDecision(text)
	})
	if err != nil {
		return model.NoiseDecision{}, err
	}

	if decision.Confidence < g.gateCfg.ConfidenceFloor {
		zap.L().Debug("gateway: auto-reject under confidence floor",
			zap.Float64("confidence", decision.Confidence),
			zap.Float64("floor", g.gateCfg.ConfidenceFloor),
		)
		decision.Decision = model.DecisionReject
		decision.Reason = model.ReasonConfidenceBelowThreshold
	}
	return decision, nil
}

// Extract runs Stage B and returns the raw model output. Schema
// validation happens in the reprompt controller, not here: a well-formed
// transport response with a broken payload is a schema failure, not an
// AI-service failure.
func (g *Gateway) Extract(ctx context.Context, rawText string, priorViolations []string) (string, error) {
	user := fmt.Sprintf(extractionUserPrompt, rawText)
	if len(priorViolations) > 0 {
		user = fmt.Sprintf(repromptUserPrompt, "- "+strings.Join(priorViolations, "\n- "), rawText)
	}

	return resilience.DoVal(ctx, g.retryConfig("extraction"), func(ctx context.Context) (string, error) {
		return g.call(ctx, "extraction", extractionSystemPrompt, user)
	})
}

// PromptVersion tags every Stage A ledger row for drift tracking.
func (g *Gateway) PromptVersion() string {
	return g.gateCfg.PromptVersion
}

// ModelName reports which model produced the decisions.
func (g *Gateway) ModelName() string {
	return g.aiCfg.Model
}

// parseNoiseDecision parses the Stage A contract. Non-JSON output is an
// AIServiceError so the retry policy treats it like a transport failure.
func parseNoiseDecision(text string) (model.NoiseDecision, error) {
	var decision model.NoiseDecision
	if err := json.Unmarshal([]byte(cleanJSON(text)), &decision); err != nil {
		return model.NoiseDecision{}, resilience.NewAIServiceError(eris.Wrap(err, "malformed response"), "noise_gate")
	}
	if decision.Decision != model.DecisionInclude && decision.Decision != model.DecisionReject {
		return model.NoiseDecision{}, resilience.NewAIServiceError(
			eris.Errorf("invalid decision %q", decision.Decision), "noise_gate")
	}
	if decision.Reason == "" && decision.Decision == model.DecisionReject {
		decision.Reason = model.ReasonModelReject
	}
	return decision, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown
// code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
