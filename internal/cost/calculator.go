// Package cost computes and accumulates model API spend so a long ingest
// run can report what its classification stages actually cost.
package cost

import (
	"sync"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model name to its pricing.
type Rates map[string]ModelRate

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}

// Calculator computes the cost of a single model call.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call computes the cost of one call. Unknown models cost zero.
func (c *Calculator) Call(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// Tracker accumulates spend per pipeline stage. Safe for concurrent use
// by the gateway worker pool.
type Tracker struct {
	calc *Calculator

	mu      sync.Mutex
	byStage map[string]float64
	total   float64
}

// NewTracker creates a Tracker over the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{
		calc:    NewCalculator(rates),
		byStage: make(map[string]float64),
	}
}

// Record adds one call's spend under the given stage and returns it.
func (t *Tracker) Record(stage, model string, inputTokens, outputTokens int64) float64 {
	spent := t.calc.Call(model, inputTokens, outputTokens)

	t.mu.Lock()
	t.byStage[stage] += spent
	t.total += spent
	t.mu.Unlock()
	return spent
}

// Total returns the accumulated spend in USD.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByStage returns a copy of the per-stage spend.
func (t *Tracker) ByStage() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.byStage))
	for k, v := range t.byStage {
		out[k] = v
	}
	return out
}
