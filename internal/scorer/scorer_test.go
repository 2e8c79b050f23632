package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		InvestorWeight:    0.35,
		FeasibilityWeight: 0.20,
		CostWeight:        0.15,
		UrgencyWeight:     0.15,
		ReliabilityWeight: 0.15,
		InvestorCap:       25,
		CostScaleUSD:      100,
		UrgencyWindowDays: 14,
	}
}

func testEngine() *Engine {
	return NewEngine(testScoringConfig(), References{
		InvestorWeights: map[string]float64{
			"paradigm": 10,
			"a16z":     9,
			"binance":  8,
			"smallfry": 1,
		},
		SourceReliability: map[string]float64{
			"twitter":      0.6,
			"project_blog": 0.9,
		},
	})
}

func testAction(deadline *time.Time) model.ExtractedAction {
	return model.ExtractedAction{
		RawEventID:     "ev-1",
		ProjectName:    "Testnet X",
		RequiredAction: "bridge",
		CostOfEntryUSD: 50,
		VCBacking:      []string{"Paradigm", "a16z"},
		DeadlineAt:     deadline,
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(7 * 24 * time.Hour)
	action := testAction(&deadline)

	a := e.Score(action, "twitter", now)
	b := e.Score(action, "twitter", now)
	assert.Equal(t, a, b)
}

func TestScore_Breakdown(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(7 * 24 * time.Hour)

	res := e.Score(testAction(&deadline), "twitter", now)

	require.Len(t, res.Breakdown, 5)
	assert.InDelta(t, 19.0/25.0, res.Breakdown[SubInvestorWeight].Raw, 1e-9)
	assert.InDelta(t, 0.8, res.Breakdown[SubActionFeasibility].Raw, 1e-9)
	// 1/(1+50/100)
	assert.InDelta(t, 2.0/3.0, res.Breakdown[SubCostEfficiency].Raw, 1e-9)
	// Halfway through a 14-day window.
	assert.InDelta(t, 0.5, res.Breakdown[SubDeadlineUrgency].Raw, 1e-9)
	assert.InDelta(t, 0.6, res.Breakdown[SubSourceReliability].Raw, 1e-9)

	// Score equals the sum of weighted components, clamped to [0,1].
	sum := 0.0
	for _, c := range res.Breakdown {
		sum += c.Weighted
	}
	assert.InDelta(t, sum, res.Score, 1e-9)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 1.0)

	assert.InDelta(t, 19.0, res.InvestorRawSum, 1e-9)
	assert.Equal(t, model.PriorityHigh, res.Priority)
}

func TestScore_InvestorCap(t *testing.T) {
	e := testEngine()
	action := testAction(nil)
	action.VCBacking = []string{"Paradigm", "a16z", "Binance"} // sums to 27

	res := e.Score(action, "twitter", time.Now().UTC())
	assert.InDelta(t, 27.0, res.InvestorRawSum, 1e-9)
	// Normalized sub-score saturates at the cap.
	assert.InDelta(t, 1.0, res.Breakdown[SubInvestorWeight].Raw, 1e-9)
}

func TestScore_UnknownInvestorsScoreZero(t *testing.T) {
	e := testEngine()
	action := testAction(nil)
	action.VCBacking = []string{"Totally Unknown Fund"}

	res := e.Score(action, "twitter", time.Now().UTC())
	assert.Zero(t, res.InvestorRawSum)
	assert.Equal(t, model.PriorityLow, res.Priority)
}

func TestScore_InvestorLookupCasefolds(t *testing.T) {
	e := testEngine()
	action := testAction(nil)
	action.VCBacking = []string{"  PARADIGM  "}

	res := e.Score(action, "twitter", time.Now().UTC())
	assert.InDelta(t, 10.0, res.InvestorRawSum, 1e-9)
}

func TestActionFeasibility(t *testing.T) {
	tests := []struct {
		action string
		want   float64
	}{
		{"retweet and follow", 1.0},
		{"bridge", 0.8},
		{"swap tokens", 0.8},
		{"join testnet", 0.6},
		{"stake ETH", 0.6},
		{"run node", 0.2},
		{"operate a validator", 0.2},
		{"something novel", 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, actionFeasibility(tt.action), tt.action)
	}
}

func TestDeadlineUrgency(t *testing.T) {
	e := testEngine()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, e.deadlineUrgency(nil, now), "no deadline")

	passed := now.Add(-time.Hour)
	assert.Zero(t, e.deadlineUrgency(&passed, now), "passed deadline")

	far := now.Add(30 * 24 * time.Hour)
	assert.Zero(t, e.deadlineUrgency(&far, now), "outside window")

	soon := now.Add(24 * time.Hour)
	assert.InDelta(t, 1-1.0/14.0, e.deadlineUrgency(&soon, now), 1e-9, "one day out")
}

func TestCostEfficiency(t *testing.T) {
	e := testEngine()
	assert.InDelta(t, 1.0, e.costEfficiency(0), 1e-9)
	assert.InDelta(t, 0.5, e.costEfficiency(100), 1e-9)
	assert.InDelta(t, 1.0, e.costEfficiency(-10), 1e-9, "negative clamps to zero cost")
}

func TestSourceReliability_UnknownDefaults(t *testing.T) {
	e := testEngine()
	res := e.Score(testAction(nil), "unknown_source", time.Now().UTC())
	assert.InDelta(t, 0.5, res.Breakdown[SubSourceReliability].Raw, 1e-9)
}

func TestPriorityLabel(t *testing.T) {
	tests := []struct {
		sum  float64
		want model.PriorityLabel
	}{
		{25, model.PriorityHigh},
		{18, model.PriorityHigh},
		{17.9, model.PriorityMedium},
		{8, model.PriorityMedium},
		{7.9, model.PriorityLow},
		{0, model.PriorityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PriorityLabel(tt.sum))
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		gate    float64
		cost    model.CostConfidence
		dropped int
		want    float64
	}{
		{"high cost confidence passes through", 0.9, model.CostConfidenceHigh, 0, 0.9},
		{"medium discounts", 0.9, model.CostConfidenceMedium, 0, 0.81},
		{"low discounts harder", 0.8, model.CostConfidenceLow, 0, 0.6},
		{"dropped claims compound", 1.0, model.CostConfidenceHigh, 2, 0.81},
		{"gate clamped to 1", 1.5, model.CostConfidenceHigh, 0, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.gate, tt.cost, tt.dropped), 1e-9)
		})
	}
}

func TestLogicToProfit_Clamped(t *testing.T) {
	assert.Equal(t, 10.0, logicToProfit(100, 1, 1, 1))
	assert.GreaterOrEqual(t, logicToProfit(0, 0, 0, 0), 0.0)
}
