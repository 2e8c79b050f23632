package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/scorer"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
	"github.com/pokamal0y-ship-it/alpha-project-test1/pkg/claude"
)

func testPipelineConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:          "claude-haiku-4-5-20251001",
			TimeoutSecs:    5,
			MaxAttempts:    1,
			RequestsPerSec: 1000,
		},
		Dedup: config.DedupConfig{
			SimilarityThreshold: 0.85,
			WindowDays:          7,
			// Disable the Hamming prefilter so near-dup tests exercise
			// the Jaccard confirmation deterministically.
			MaxHammingDistance: 64,
		},
		Gate:       config.GateConfig{ConfidenceFloor: 0.70, PromptVersion: "noise-gate-v2"},
		Extraction: config.ExtractionConfig{MaxReprompts: 2, PromptVersion: "extract-v3"},
		Validator: config.ValidatorConfig{
			HypeRatioThreshold: 0.15,
			BannedKeywords:     config.DefaultBannedKeywords(),
		},
		Scoring: config.ScoringConfig{
			InvestorWeight:    0.35,
			FeasibilityWeight: 0.20,
			CostWeight:        0.15,
			UrgencyWeight:     0.15,
			ReliabilityWeight: 0.15,
			InvestorCap:       25,
			CostScaleUSD:      100,
			UrgencyWindowDays: 14,
		},
		Pipeline: config.PipelineConfig{
			QueueSize:      8,
			DedupWorkers:   1,
			GatewayWorkers: 1,
			ScoringWorkers: 1,
		},
	}
}

func newTestPipeline(t *testing.T, client claude.Client) (*Pipeline, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	refs := scorer.References{
		InvestorWeights:   map[string]float64{"paradigm": 10, "a16z": 9},
		SourceReliability: map[string]float64{"twitter": 0.6, "project_blog": 0.9},
	}
	return New(testPipelineConfig(), st, client, refs), st
}

func testEnvelope(source, externalID, text string) model.Envelope {
	return model.Envelope{
		Source:      source,
		ExternalID:  externalID,
		URL:         "https://example.com/" + externalID,
		RawText:     text,
		PublishedAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		IngestedAt:  time.Date(2026, 2, 10, 12, 5, 0, 0, time.UTC),
	}
}

const announcementText = "Testnet X is live: bridge $50 to Arbitrum and complete the quests, backed by Paradigm, deadline March 1"

func gateInclude(confidence string) scriptedResponse {
	return scriptedResponse{text: `{"decision":"include","confidence":` + confidence + `}`}
}

func TestProcess_ScoredEndToEnd(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: validExtractionJSON},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-1", announcementText))
	require.NoError(t, err)
	assert.Equal(t, StatusScored, out.Status)
	assert.Equal(t, model.StageScoring, out.Stage)
	assert.Equal(t, model.ReasonScored, out.Reason)

	require.NotNil(t, out.Opportunity)
	assert.Equal(t, "Testnet X", out.Opportunity.ProjectName)
	assert.Equal(t, "bridge", out.Opportunity.RequiredAction)
	assert.Greater(t, out.Opportunity.Score, 0.0)
	// Paradigm alone sums to 10: medium priority.
	assert.Equal(t, model.PriorityMedium, out.Opportunity.Priority)
	// Gate confidence 0.92 with high cost confidence and no dropped claims.
	assert.InDelta(t, 0.92, out.Opportunity.Confidence, 1e-9)

	chain, err := st.DecisionChain(context.Background(), out.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 5)
	var stages []model.Stage
	for _, d := range chain {
		stages = append(stages, d.Stage)
		assert.Equal(t, model.DecisionInclude, d.Decision)
	}
	assert.Equal(t, []model.Stage{model.StageDedup, model.StageNoiseGate, model.StageExtraction, model.StageValidation, model.StageScoring}, stages)
	assert.Contains(t, chain[3].Reason, "passed (checks:")
}

func TestProcess_NoiseGateReject(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: `{"decision":"reject","confidence":0.95,"reason":"price speculation","noise_flags":["hype_language"]}`},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-2", "BTC about to break resistance, 100x gem, buy now"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageNoiseGate, out.Stage)
	assert.Contains(t, out.Reason, "price speculation")
	assert.Contains(t, out.Reason, "hype_language")

	// Stage B never ran.
	assert.Equal(t, 1, client.calls)

	chain, err := st.DecisionChain(context.Background(), out.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, model.DecisionReject, chain[1].Decision)
	assert.Equal(t, "claude-haiku-4-5-20251001", chain[1].ModelName)
	assert.Equal(t, 0.95, chain[1].ModelConfidence)
	assert.Equal(t, "noise-gate-v2", chain[1].PromptVersion)
}

func TestProcess_ConfidenceFloorReject(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.55"),
	}}
	p, _ := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-3", "maybe some testnet thing happening"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageNoiseGate, out.Stage)
	assert.Contains(t, out.Reason, model.ReasonConfidenceBelowThreshold)
}

func TestProcess_ExactDuplicate(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: validExtractionJSON},
	}}
	p, _ := newTestPipeline(t, client)

	first, err := p.Process(context.Background(), testEnvelope("twitter", "tw-4", announcementText))
	require.NoError(t, err)
	require.Equal(t, StatusScored, first.Status)
	callsAfterFirst := client.calls

	// Same content from a different source, published later: rejected
	// without touching the model despite the whitespace difference.
	dup := testEnvelope("discord", "dc-1", announcementText+" ")
	dup.PublishedAt = dup.PublishedAt.Add(time.Hour)
	out, err := p.Process(context.Background(), dup)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, out.Status)
	assert.Equal(t, model.StageDedup, out.Stage)
	assert.Contains(t, out.Reason, model.ReasonDuplicate+" of "+first.EventID)
	assert.Equal(t, callsAfterFirst, client.calls)
}

func TestProcess_NearDuplicate(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: validExtractionJSON},
	}}
	p, _ := newTestPipeline(t, client)

	first, err := p.Process(context.Background(), testEnvelope("twitter", "tw-5", announcementText))
	require.NoError(t, err)
	require.Equal(t, StatusScored, first.Status)

	// One extra token over ~18 shared ones keeps Jaccard well above 0.85.
	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-6", announcementText+" today"))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, out.Status)
	assert.Contains(t, out.Reason, model.ReasonNearDuplicate+" of "+first.EventID)
}

func TestProcess_ReplayShortCircuits(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: validExtractionJSON},
	}}
	p, _ := newTestPipeline(t, client)

	env := testEnvelope("twitter", "tw-7", announcementText)
	first, err := p.Process(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, StatusScored, first.Status)
	callsAfterFirst := client.calls

	// The same logical event requeued after a restart resolves from the
	// ledger without re-running any stage.
	out, err := p.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, StatusScored, out.Status)
	assert.Equal(t, first.EventID, out.EventID)
	assert.Equal(t, model.StageScoring, out.Stage)
	assert.Equal(t, callsAfterFirst, client.calls)
}

func TestProcess_GatewayUnavailable(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: eris.New("service unavailable")},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-8", announcementText))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageNoiseGate, out.Stage)
	assert.Equal(t, model.ReasonGatewayUnavailable, out.Reason)

	chain, err := st.DecisionChain(context.Background(), out.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, model.ReasonGatewayUnavailable, chain[1].Reason)
}

func TestProcess_SchemaExhausted(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: "this is not the schema you were asking for"},
	}}
	p, _ := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-9", announcementText))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageExtraction, out.Stage)
	assert.Equal(t, model.ReasonExtractionSchemaExhausted, out.Reason)
	// One gate call plus the first attempt and two reprompts.
	assert.Equal(t, 4, client.calls)
}

func TestProcess_ModelRejectAtExtraction(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: `{"decision":"reject","project_name":null,"required_action":null,"cost_of_entry":{"confidence":"low"},"reason":"no actionable task"}`},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-10", announcementText))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageExtraction, out.Stage)
	assert.Equal(t, "model_reject: no actionable task", out.Reason)

	// The rejected action is persisted for audit alongside its ledger row.
	action, err := st.GetExtractedAction(context.Background(), out.EventID)
	require.NoError(t, err)
	assert.Equal(t, model.ValidationInvalid, action.ValidationStatus)
}

func TestProcess_ValidationHypeReject(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: validExtractionJSON},
	}}
	p, _ := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-11", "moon gem pump guaranteed 100x buy now"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, model.StageValidation, out.Stage)
	assert.Equal(t, model.ReasonHypeRatioExceeded, out.Reason)
}

func TestProcess_CorrectedExtraction(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: `{"decision":"maybe","cost_of_entry":{"confidence":"low"}}`},
		{text: validExtractionJSON},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-12", announcementText))
	require.NoError(t, err)
	assert.Equal(t, StatusScored, out.Status)

	action, err := st.GetExtractedAction(context.Background(), out.EventID)
	require.NoError(t, err)
	assert.Equal(t, model.ValidationCorrected, action.ValidationStatus)
	assert.Equal(t, 2, action.Attempts)

	chain, err := st.DecisionChain(context.Background(), out.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 5)
	assert.Equal(t, "corrected after 2 attempts", chain[2].Reason)
}

func TestProcess_RescoreFromStoredActionMatches(t *testing.T) {
	extraction := `{
		"decision": "include",
		"project_name": "Testnet X",
		"required_action": "bridge",
		"cost_of_entry": {"amount_usd": 50, "confidence": "high"},
		"vc_backing": ["Paradigm", "Shady Capital"],
		"deadline": "2025-03-01",
		"evidence": ["backed by Paradigm"],
		"reason": "actionable testnet task",
		"noise_flags": []
	}`
	client := &scriptedClient{responses: []scriptedResponse{
		gateInclude("0.92"),
		{text: extraction},
	}}
	p, st := newTestPipeline(t, client)

	out, err := p.Process(context.Background(), testEnvelope("twitter", "tw-13", announcementText))
	require.NoError(t, err)
	require.Equal(t, StatusScored, out.Status)
	require.NotNil(t, out.Opportunity)

	// The unevidenced claim is dropped from the opportunity and from the
	// persisted action, and degrades confidence by one step.
	assert.Equal(t, []string{"Paradigm"}, out.Opportunity.VCBacking)
	assert.InDelta(t, 0.92*0.9, out.Opportunity.Confidence, 1e-9)
	action, err := st.GetExtractedAction(context.Background(), out.EventID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Paradigm"}, action.VCBacking)

	// Re-running the scorer over the stored action reproduces the score.
	refs := scorer.References{
		InvestorWeights:   map[string]float64{"paradigm": 10, "a16z": 9},
		SourceReliability: map[string]float64{"twitter": 0.6, "project_blog": 0.9},
	}
	engine := scorer.NewEngine(testPipelineConfig().Scoring, refs)
	res := engine.Score(*action, "twitter", time.Now().UTC())
	assert.Equal(t, out.Opportunity.Score, res.Score)
	assert.Equal(t, out.Opportunity.Priority, res.Priority)
}

func TestProcess_InvalidEnvelope(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptedClient{responses: []scriptedResponse{gateInclude("0.9")}})

	_, err := p.Process(context.Background(), model.Envelope{Source: "twitter", RawText: "  "})
	assert.Error(t, err)
}
