// Package scorer computes deterministic, explainable opportunity scores.
// Scoring is pure arithmetic over already-validated data: out-of-range
// inputs are clamped, never raised as errors.
package scorer

import (
	"strings"
	"time"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

// Sub-score names in the breakdown map. They are part of the delivery
// contract (`why_included`), so treat them as stable identifiers.
const (
	SubInvestorWeight    = "investor_weight"
	SubActionFeasibility = "action_feasibility"
	SubCostEfficiency    = "cost_efficiency"
	SubDeadlineUrgency   = "deadline_urgency"
	SubSourceReliability = "source_reliability"
)

// References is the read-only reference data consumed at scoring time.
type References struct {
	// InvestorWeights maps casefolded investor name to tier weight.
	InvestorWeights map[string]float64
	// SourceReliability maps source id to credibility in [0,1].
	SourceReliability map[string]float64
}

// Result carries the score, its breakdown, and the derived delivery fields.
type Result struct {
	Score              float64
	Breakdown          model.ScoreBreakdown
	InvestorRawSum     float64
	LogicToProfitRatio float64
	Priority           model.PriorityLabel
}

// Engine scores extracted actions against reference data. It holds no
// mutable state; the same inputs always produce the same Result.
type Engine struct {
	cfg  config.ScoringConfig
	refs References
}

// NewEngine creates a scoring engine with the given weights and references.
func NewEngine(cfg config.ScoringConfig, refs References) *Engine {
	return &Engine{cfg: cfg, refs: refs}
}

// Score computes the weighted opportunity score for an action. now is an
// explicit input so recomputation at the same instant is bit-identical.
func (e *Engine) Score(action model.ExtractedAction, sourceID string, now time.Time) Result {
	rawSum, investor := e.investorScore(action.VCBacking)
	feasibility := actionFeasibility(action.RequiredAction)
	cost := e.costEfficiency(action.CostOfEntryUSD)
	urgency := e.deadlineUrgency(action.DeadlineAt, now)
	reliability := e.sourceReliability(sourceID)

	weightSum := e.cfg.InvestorWeight + e.cfg.FeasibilityWeight + e.cfg.CostWeight +
		e.cfg.UrgencyWeight + e.cfg.ReliabilityWeight

	breakdown := model.ScoreBreakdown{}
	total := 0.0
	add := func(name string, raw, weight float64) {
		weighted := raw * weight / weightSum
		breakdown[name] = model.ScoreComponent{Raw: raw, Weight: weight, Weighted: weighted}
		total += weighted
	}
	add(SubInvestorWeight, investor, e.cfg.InvestorWeight)
	add(SubActionFeasibility, feasibility, e.cfg.FeasibilityWeight)
	add(SubCostEfficiency, cost, e.cfg.CostWeight)
	add(SubDeadlineUrgency, urgency, e.cfg.UrgencyWeight)
	add(SubSourceReliability, reliability, e.cfg.ReliabilityWeight)

	return Result{
		Score:              clamp01(total),
		Breakdown:          breakdown,
		InvestorRawSum:     rawSum,
		LogicToProfitRatio: logicToProfit(investor, reliability, feasibility, cost),
		Priority:           PriorityLabel(rawSum),
	}
}

// investorScore sums matched reference weights for backing entries,
// capped to avoid unbounded inflation from many small investors. Returns
// the uncapped raw sum and the normalized [0,1] sub-score.
func (e *Engine) investorScore(backing []string) (rawSum, normalized float64) {
	for _, name := range backing {
		rawSum += e.refs.InvestorWeights[strings.ToLower(strings.TrimSpace(name))]
	}
	capped := rawSum
	if capped > e.cfg.InvestorCap {
		capped = e.cfg.InvestorCap
	}
	return rawSum, clamp01(capped / e.cfg.InvestorCap)
}

// actionClasses orders action kinds by effort: a retweet is cheap, running
// a validator node is not.
var actionClasses = []struct {
	keywords    []string
	feasibility float64
}{
	{[]string{"follow", "retweet", "like", "join discord", "social", "quest"}, 1.0},
	{[]string{"bridge", "swap", "mint", "claim", "vote"}, 0.8},
	{[]string{"testnet", "test net", "deposit", "stake", "provide liquidity", "lp"}, 0.6},
	{[]string{"run_node", "run node", "validator", "operate", "self-host"}, 0.2},
}

func actionFeasibility(requiredAction string) float64 {
	action := strings.ToLower(requiredAction)
	for _, class := range actionClasses {
		for _, kw := range class.keywords {
			if strings.Contains(action, kw) {
				return class.feasibility
			}
		}
	}
	return 0.5
}

// costEfficiency decreases monotonically with entry cost; zero cost maps
// to the maximum 1.0, so there is no division-by-zero edge.
func (e *Engine) costEfficiency(costUSD float64) float64 {
	if costUSD < 0 {
		costUSD = 0
	}
	return clamp01(1 / (1 + costUSD/e.cfg.CostScaleUSD))
}

// deadlineUrgency rises linearly as the deadline approaches inside the
// urgency window; no deadline or a passed deadline scores zero.
func (e *Engine) deadlineUrgency(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	window := time.Duration(e.cfg.UrgencyWindowDays) * 24 * time.Hour
	if window <= 0 || remaining >= window {
		return 0
	}
	return clamp01(1 - float64(remaining)/float64(window))
}

func (e *Engine) sourceReliability(sourceID string) float64 {
	if r, ok := e.refs.SourceReliability[sourceID]; ok {
		return clamp01(r)
	}
	return 0.5
}

// logicToProfit relates expected reward (investor quality, source trust)
// to required effort (infeasibility, cost). Clamped to [0,10].
func logicToProfit(investor, reliability, feasibility, costEfficiency float64) float64 {
	reward := investor + reliability
	effort := (1 - feasibility) + (1 - costEfficiency) + 0.1
	ratio := reward / effort
	if ratio < 0 {
		return 0
	}
	if ratio > 10 {
		return 10
	}
	return ratio
}

// PriorityLabel buckets the uncapped investor sum for delivery formatting.
func PriorityLabel(investorRawSum float64) model.PriorityLabel {
	switch {
	case investorRawSum >= 18:
		return model.PriorityHigh
	case investorRawSum >= 8:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Confidence combines the noise-gate confidence with per-field extraction
// confidence and a penalty for dropped unevidenced backing claims.
func Confidence(gateConfidence float64, costConf model.CostConfidence, droppedClaims int) float64 {
	factor := 1.0
	switch costConf {
	case model.CostConfidenceMedium:
		factor = 0.9
	case model.CostConfidenceLow:
		factor = 0.75
	}
	c := clamp01(gateConfidence) * factor
	for i := 0; i < droppedClaims; i++ {
		c *= 0.9
	}
	return clamp01(c)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
