package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Usage tracks token usage and spend for a model.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Requests     int     `json:"requests"`
	Failures     int     `json:"failures"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add adds the given usage to this usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Requests += other.Requests
	u.Failures += other.Failures
	u.CostUSD = decimal.NewFromFloat(u.CostUSD).Add(decimal.NewFromFloat(other.CostUSD)).Round(6).InexactFloat64()
}

// TotalTokens returns the total tokens used.
func (u *Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// CostTracker accumulates usage and spend per model over one orchestration.
// It is safe for concurrent use.
type CostTracker struct {
	mu     sync.RWMutex
	totals map[ModelName]Usage
	spend  map[ModelName]decimal.Decimal
}

// NewCostTracker creates a new cost tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{
		totals: make(map[ModelName]Usage),
		spend:  make(map[ModelName]decimal.Decimal),
	}
}

// Record adds one call for the given model. Failed calls count as a request
// and a failure; their tokens and cost are usually zero.
func (t *CostTracker) Record(model ModelName, input, output int, costUSD float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.totals[model]
	u.InputTokens += input
	u.OutputTokens += output
	u.Requests++
	if !ok {
		u.Failures++
	}

	s := t.spend[model].Add(decimal.NewFromFloat(costUSD))
	t.spend[model] = s
	u.CostUSD = s.Round(6).InexactFloat64()
	t.totals[model] = u
}

// Usage returns the usage for a specific model.
func (t *CostTracker) Usage(model ModelName) Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totals[model]
}

// Summary returns a copy of all usage totals.
func (t *CostTracker) Summary() map[ModelName]Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[ModelName]Usage, len(t.totals))
	for k, v := range t.totals {
		result[k] = v
	}
	return result
}

// TotalUsage returns aggregated usage across all models.
func (t *CostTracker) TotalUsage() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total Usage
	for _, u := range t.totals {
		total.Add(u)
	}
	return total
}

// TotalCost returns the summed spend across all models, rounded to 6 places.
func (t *CostTracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sum := decimal.Zero
	for _, s := range t.spend {
		sum = sum.Add(s)
	}
	return sum.Round(6).InexactFloat64()
}

// Reset clears all tracked usage.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = make(map[ModelName]Usage)
	t.spend = make(map[ModelName]decimal.Decimal)
}
