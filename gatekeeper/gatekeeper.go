package gatekeeper

import (
	"fmt"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/classify"
	"github.com/randalmurphal/council/model"
)

// Decision is the gatekeeper's answer.
type Decision string

// Decisions.
const (
	Invoke      Decision = "INVOKE"
	Skip        Decision = "SKIP"
	BudgetBlock Decision = "BUDGET_BLOCK"
)

// Defaults.
const (
	DefaultGateFraction = 0.40
	DefaultMinInvoke    = 0.50
)

// Result is a gatekeeper decision with its inputs.
type Result struct {
	Decision        Decision   `json:"decision"`
	Category        string     `json:"category"`
	Confidence      float64    `json:"confidence"`
	Tier            model.Tier `json:"tier"`
	RemainingBudget float64    `json:"budget_remaining"`
	GateThreshold   float64    `json:"budget_threshold"`
	Reason          string     `json:"reason"`
}

// Gatekeeper guards the highest-cost model. It is read-only after
// construction and safe for concurrent use.
type Gatekeeper struct {
	categories   []Category
	classifier   *classify.Classifier
	gateFraction float64
	minInvoke    float64
	highest      model.Tier
	substitute   model.ModelName
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithCategories replaces the category table.
func WithCategories(c []Category) Option {
	return func(g *Gatekeeper) { g.categories = append([]Category(nil), c...) }
}

// WithClassifier sets the classifier used when no tier is given.
func WithClassifier(c *classify.Classifier) Option {
	return func(g *Gatekeeper) {
		if c != nil {
			g.classifier = c
		}
	}
}

// WithGateFraction sets the share of the monthly budget above which
// non-mandatory invocations are blocked.
func WithGateFraction(f float64) Option {
	return func(g *Gatekeeper) {
		if f > 0 {
			g.gateFraction = f
		}
	}
}

// WithMinInvoke sets the minimum remaining budget needed to invoke.
func WithMinInvoke(usd float64) Option {
	return func(g *Gatekeeper) {
		if usd >= 0 {
			g.minInvoke = usd
		}
	}
}

// WithSubstitute sets the model recommended when invocation is refused.
func WithSubstitute(m model.ModelName) Option {
	return func(g *Gatekeeper) {
		if m != "" {
			g.substitute = m
		}
	}
}

// New creates a gatekeeper with the default tables and thresholds.
func New(opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		categories:   DefaultCategories(),
		classifier:   classify.New(),
		gateFraction: DefaultGateFraction,
		minInvoke:    DefaultMinInvoke,
		highest:      model.HighestTier,
		substitute:   model.ModelGeminiPro,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Substitute returns the model recommended in place of the guarded one.
func (g *Gatekeeper) Substitute() model.ModelName { return g.substitute }

// Categorize returns the category match for query.
func (g *Gatekeeper) Categorize(query string) Match {
	return categorize(g.categories, query)
}

// Decide returns whether the guarded model may run. An empty tier is
// classified from the query.
func (g *Gatekeeper) Decide(query string, tier model.Tier, tokenCount int, md classify.Metadata, snap budget.Snapshot) Result {
	if tier == "" {
		tier = g.classifier.Classify(query, tokenCount, md)
	}

	match := g.Categorize(query)
	remaining := snap.Remaining()
	gate := snap.MonthlyBudget * g.gateFraction
	affordable := remaining >= g.minInvoke

	res := Result{
		Category:        match.Label(),
		Confidence:      match.Confidence,
		Tier:            tier,
		RemainingBudget: remaining,
		GateThreshold:   gate,
	}

	switch {
	case match.Kind == KindMandatory && affordable:
		res.Decision = Invoke
		res.Reason = fmt.Sprintf("MANDATORY category (%s)", match.Name)
	case match.Kind == KindMandatory:
		res.Decision = BudgetBlock
		res.Confidence = 1.0
		res.Reason = fmt.Sprintf("MANDATORY category but budget insufficient ($%.2f < $%.2f)", remaining, g.minInvoke)
	case match.Kind == KindSkip:
		res.Decision = Skip
		res.Reason = fmt.Sprintf("SKIP category (%s)", match.Name)
	case snap.MonthlySpend > gate:
		res.Decision = BudgetBlock
		res.Confidence = 0.8
		res.Reason = fmt.Sprintf("Budget gate exceeded ($%.2f > $%.2f)", snap.MonthlySpend, gate)
	case tier == g.highest && affordable:
		res.Decision = Invoke
		res.Confidence = 0.7
		res.Reason = fmt.Sprintf("Tier %s invokes the final arbiter by default", tier)
	case tier == g.highest:
		res.Decision = BudgetBlock
		res.Confidence = 0.7
		res.Reason = fmt.Sprintf("Tier %s eligible but budget insufficient", tier)
	default:
		res.Decision = Skip
		res.Confidence = 0.6
		res.Reason = fmt.Sprintf("No mandatory category detected, tier %s does not require the final arbiter", tier)
	}
	return res
}

// RecommendDegradation returns the substitute model for a refused
// invocation, or "" when none applies.
func (g *Gatekeeper) RecommendDegradation(res Result) model.ModelName {
	switch {
	case res.Decision == BudgetBlock:
		return g.substitute
	case res.Decision == Skip && res.Tier == g.highest:
		return g.substitute
	default:
		return ""
	}
}
