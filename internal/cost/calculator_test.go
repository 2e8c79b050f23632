package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"haiku":  {Input: 0.80, Output: 4.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	}
}

func TestCalculatorCall(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{"haiku full million", "haiku", 1_000_000, 100_000, 0.80 + 0.40},
		{"sonnet full million", "sonnet", 1_000_000, 100_000, 3.00 + 1.50},
		{"unknown model costs zero", "unknown", 1_000_000, 1_000_000, 0},
		{"zero tokens cost zero", "haiku", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Call(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestTracker_AccumulatesByStage(t *testing.T) {
	t.Parallel()
	tr := NewTracker(testRates())

	tr.Record("noise_gate", "haiku", 1_000_000, 0)
	tr.Record("noise_gate", "haiku", 1_000_000, 0)
	tr.Record("extraction", "haiku", 0, 1_000_000)

	byStage := tr.ByStage()
	assert.InDelta(t, 1.60, byStage["noise_gate"], 1e-9)
	assert.InDelta(t, 4.00, byStage["extraction"], 1e-9)
	assert.InDelta(t, 5.60, tr.Total(), 1e-9)
}

func TestTracker_ConcurrentRecords(t *testing.T) {
	t.Parallel()
	tr := NewTracker(testRates())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("noise_gate", "haiku", 1_000_000, 0)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 40.0, tr.Total(), 1e-9)
}
