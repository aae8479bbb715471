package cost

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/tokens"
	"github.com/shopspring/decimal"
)

// DefaultCeiling is the per-query cost ceiling in USD.
const DefaultCeiling = 2.50

// Conservative range charged for a model the pricing table does not know.
var (
	unknownMin = decimal.RequireFromString("0.01")
	unknownMax = decimal.RequireFromString("0.05")
)

// Estimate is a pre-dispatch cost prediction.
type Estimate struct {
	Tier         model.Tier              `json:"tier"`
	Models       []model.ModelName       `json:"models"`
	InputTokens  int                     `json:"estimated_tokens"`
	OutputTokens map[model.ModelName]int `json:"output_tokens"`
	MinCost      float64                 `json:"estimated_min_cost"`
	MaxCost      float64                 `json:"estimated_max_cost"`
	CanProceed   bool                    `json:"can_proceed"`
	Reason       string                  `json:"reason"`
}

// Predictor estimates query cost. It is read-only after construction.
type Predictor struct {
	pricing func() *model.PricingTable
	tiers   model.TierSet
	counter tokens.Counter
	ceiling float64
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithPricing sets a fixed pricing table.
func WithPricing(t *model.PricingTable) Option {
	return func(p *Predictor) {
		if t != nil {
			p.pricing = func() *model.PricingTable { return t }
		}
	}
}

// WithPricingSource reads the pricing table from fn on every estimate, so a
// hot-reloaded table is seen by estimates and billing alike.
func WithPricingSource(fn func() *model.PricingTable) Option {
	return func(p *Predictor) {
		if fn != nil {
			p.pricing = fn
		}
	}
}

// WithTiers sets the tier configuration.
func WithTiers(t model.TierSet) Option {
	return func(p *Predictor) {
		if t != nil {
			p.tiers = t
		}
	}
}

// WithCeiling sets the per-query ceiling.
func WithCeiling(usd float64) Option {
	return func(p *Predictor) {
		if usd > 0 {
			p.ceiling = usd
		}
	}
}

// WithCounter replaces the input token counter.
func WithCounter(c tokens.Counter) Option {
	return func(p *Predictor) {
		if c != nil {
			p.counter = c
		}
	}
}

// NewPredictor creates a predictor with the default pricing and tiers.
func NewPredictor(opts ...Option) *Predictor {
	defaults := model.DefaultPricing()
	p := &Predictor{
		pricing: func() *model.PricingTable { return defaults },
		tiers:   model.DefaultTiers(),
		counter: tokens.NewFlooringCounter(),
		ceiling: DefaultCeiling,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ceiling returns the per-query ceiling.
func (p *Predictor) Ceiling() float64 { return p.ceiling }

// InputTokens estimates the input size of query plus context.
func (p *Predictor) InputTokens(query, context string) int {
	return p.counter.Count(query + "\n" + context)
}

// Estimate predicts the cost of running tier for query and checks it
// against snap. A nil models list uses the tier's models.
func (p *Predictor) Estimate(query, context string, tier model.Tier, models []model.ModelName, snap budget.Snapshot) Estimate {
	if models == nil {
		models = p.tiers.Models(tier)
		if len(models) == 0 {
			models = []model.ModelName{model.ModelClaudeSonnet}
		}
	}

	pricing := p.pricing()
	if pricing == nil {
		pricing = model.DefaultPricing()
	}
	input := p.InputTokens(query, context)
	minCost, maxCost := decimal.Zero, decimal.Zero
	outputs := make(map[model.ModelName]int, len(models))

	for _, m := range models {
		out := pricing.Output(m).Estimate(input)
		outputs[m] = out

		if _, ok := pricing.Lookup(m); !ok {
			minCost = minCost.Add(unknownMin)
			maxCost = maxCost.Add(unknownMax)
			continue
		}
		c := pricing.CostDecimal(m, input, out)
		minCost = minCost.Add(c)
		maxCost = maxCost.Add(c)
	}

	est := Estimate{
		Tier:         tier,
		Models:       models,
		InputTokens:  input,
		OutputTokens: outputs,
		MinCost:      minCost.Round(4).InexactFloat64(),
		MaxCost:      maxCost.Round(4).InexactFloat64(),
	}
	// Limits are checked on the unrounded sum; MaxCost is for display.
	est.CanProceed, est.Reason = p.check(tier, maxCost, snap)
	return est
}

// Check decides whether a query costing maxCost may run in tier.
func (p *Predictor) Check(tier model.Tier, maxCost float64, snap budget.Snapshot) (bool, string) {
	return p.check(tier, decimal.NewFromFloat(maxCost), snap)
}

func (p *Predictor) check(tier model.Tier, maxCost decimal.Decimal, snap budget.Snapshot) (bool, string) {
	shown := maxCost.InexactFloat64()
	if maxCost.GreaterThan(decimal.NewFromFloat(p.ceiling)) {
		return false, fmt.Sprintf("Cost $%.2f exceeds per-query ceiling of $%.2f", shown, p.ceiling)
	}

	remaining := snap.Remaining()
	if maxCost.GreaterThan(decimal.NewFromFloat(remaining)) {
		return false, fmt.Sprintf("Insufficient budget: $%.2f > $%.2f remaining", shown, remaining)
	}

	share := p.tiers.Share(tier)
	tierBudget := decimal.NewFromFloat(snap.MonthlyBudget).Mul(decimal.NewFromFloat(share))
	tierLeft := tierBudget.Sub(decimal.NewFromFloat(snap.SpendForTier(tier, share))).Round(6)
	if maxCost.GreaterThan(tierLeft) {
		return false, fmt.Sprintf("Tier budget exceeded: $%.2f > $%.2f tier budget remaining", shown, tierLeft.InexactFloat64())
	}

	return true, "Budget available"
}

// RecommendDegradation returns the tier to try after est was rejected.
// tier_1 degrades to itself.
func RecommendDegradation(est Estimate) model.Tier {
	switch est.Tier {
	case model.TierFull:
		if strings.Contains(strings.ToLower(est.Reason), "budget") {
			return model.TierSimple
		}
		return model.TierLite
	case model.TierLite, model.TierResearch:
		return model.TierSimple
	default:
		return est.Tier
	}
}
