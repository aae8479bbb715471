package budget

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/council/model"
	"github.com/shopspring/decimal"
)

// DefaultMonthlyBudget is the monthly budget in USD when none is configured.
const DefaultMonthlyBudget = 100.0

// Snapshot is a point-in-time view of monthly spend.
type Snapshot struct {
	MonthlyBudget float64 `json:"monthly_budget"`
	MonthlySpend  float64 `json:"monthly_spend"`

	// TierSpend is spend so far per tier. Tiers missing from the map are
	// estimated from MonthlySpend.
	TierSpend map[model.Tier]float64 `json:"tier_spend,omitempty"`

	TakenAt time.Time `json:"taken_at"`
}

// Remaining returns the unspent monthly budget. It may be negative.
func (s Snapshot) Remaining() float64 {
	return decimal.NewFromFloat(s.MonthlyBudget).
		Sub(decimal.NewFromFloat(s.MonthlySpend)).
		Round(6).InexactFloat64()
}

// SpendForTier returns spend attributed to tier. Without a recorded figure
// it is MonthlySpend times share.
func (s Snapshot) SpendForTier(t model.Tier, share float64) float64 {
	if v, ok := s.TierSpend[t]; ok {
		return v
	}
	return decimal.NewFromFloat(s.MonthlySpend).
		Mul(decimal.NewFromFloat(share)).
		Round(6).InexactFloat64()
}

// SpendFraction returns MonthlySpend / MonthlyBudget, or 1 for a zero budget.
func (s Snapshot) SpendFraction() float64 {
	if s.MonthlyBudget <= 0 {
		return 1
	}
	return s.MonthlySpend / s.MonthlyBudget
}

// Source supplies budget snapshots.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static is a Source with fixed figures. It is safe for concurrent use.
type Static struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatic creates a static source. A zero budget becomes
// DefaultMonthlyBudget.
func NewStatic(monthlyBudget, monthlySpend float64) *Static {
	if monthlyBudget <= 0 {
		monthlyBudget = DefaultMonthlyBudget
	}
	return &Static{snap: Snapshot{MonthlyBudget: monthlyBudget, MonthlySpend: monthlySpend}}
}

// WithTierSpend records spend for one tier.
func (s *Static) WithTierSpend(t model.Tier, spend float64) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.TierSpend == nil {
		s.snap.TierSpend = make(map[model.Tier]float64)
	}
	s.snap.TierSpend[t] = spend
	return s
}

// SetSpend replaces the monthly spend.
func (s *Static) SetSpend(spend float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MonthlySpend = spend
}

// Snapshot implements Source.
func (s *Static) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	if s.snap.TierSpend != nil {
		out.TierSpend = make(map[model.Tier]float64, len(s.snap.TierSpend))
		for k, v := range s.snap.TierSpend {
			out.TierSpend[k] = v
		}
	}
	out.TakenAt = time.Now()
	return out, nil
}

// Func adapts a function to a Source.
type Func func(ctx context.Context) (Snapshot, error)

// Snapshot implements Source.
func (f Func) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

var (
	_ Source = (*Static)(nil)
	_ Source = Func(nil)
)
