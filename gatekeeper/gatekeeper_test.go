package gatekeeper

import (
	"strings"
	"testing"

	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/classify"
	"github.com/randalmurphal/council/model"
	"github.com/stretchr/testify/assert"
)

func snap(budgetUSD, spend float64) budget.Snapshot {
	return budget.Snapshot{MonthlyBudget: budgetUSD, MonthlySpend: spend}
}

func TestDecide_Scenarios(t *testing.T) {
	g := New()

	t.Run("syntax error skips", func(t *testing.T) {
		res := g.Decide("fix this syntax error", "", 0, classify.Metadata{}, snap(100, 0))
		assert.Equal(t, model.TierSimple, res.Tier)
		assert.Equal(t, "SKIP:syntax_error", res.Category)
		assert.Equal(t, Skip, res.Decision)
		assert.Empty(t, g.RecommendDegradation(res))
	})

	t.Run("council query with budget invokes", func(t *testing.T) {
		res := g.Decide("@council_v2 should we use PostgreSQL or MongoDB", "", 0, classify.Metadata{}, snap(100, 30))
		assert.Equal(t, model.TierFull, res.Tier)
		assert.Equal(t, Invoke, res.Decision)
		assert.InDelta(t, 70.0, res.RemainingBudget, 1e-9)
		assert.InDelta(t, 40.0, res.GateThreshold, 1e-9)
	})

	t.Run("council query without budget blocks", func(t *testing.T) {
		res := g.Decide("@council_v2 should we use PostgreSQL or MongoDB", "", 0, classify.Metadata{}, snap(100, 99.60))
		assert.Equal(t, BudgetBlock, res.Decision)
		assert.InDelta(t, 0.40, res.RemainingBudget, 1e-9)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Equal(t, model.ModelGeminiPro, g.RecommendDegradation(res))
	})
}

func TestDecide_Precedence(t *testing.T) {
	g := New()

	tests := []struct {
		name       string
		query      string
		tier       model.Tier
		snap       budget.Snapshot
		want       Decision
		confidence float64
		category   string
	}{
		{"mandatory affordable", "draft a roadmap", model.TierSimple, snap(100, 0), Invoke, 0.9, "MANDATORY:strategy"},
		{"mandatory beats gate", "draft a roadmap", model.TierSimple, snap(100, 90), Invoke, 0.9, "MANDATORY:strategy"},
		{"mandatory unaffordable", "client onboarding", model.TierSimple, snap(100, 99.9), BudgetBlock, 1.0, "MANDATORY:client_communication"},
		{"skip ignores budget", "debug the login", model.TierFull, snap(1e9, 0), Skip, 0.9, "SKIP:simple_debugging"},
		{"gate exceeded", "hello world", model.TierFull, snap(100, 50), BudgetBlock, 0.8, "NONE"},
		{"gate boundary is inclusive", "hello world", model.TierFull, snap(100, 40), Invoke, 0.7, "NONE"},
		{"highest tier affordable", "hello world", model.TierFull, snap(100, 10), Invoke, 0.7, "NONE"},
		{"highest tier unaffordable", "hello world", model.TierFull, snap(0.6, 0.2), BudgetBlock, 0.7, "NONE"},
		{"lower tier skips", "hello world", model.TierLite, snap(100, 0), Skip, 0.6, "NONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Decide(tt.query, tt.tier, 0, classify.Metadata{}, tt.snap)
			if res.Decision != tt.want {
				t.Errorf("Decision = %s, want %s (%s)", res.Decision, tt.want, res.Reason)
			}
			if res.Confidence != tt.confidence {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.confidence)
			}
			if res.Category != tt.category {
				t.Errorf("Category = %s, want %s", res.Category, tt.category)
			}
			if res.Reason == "" {
				t.Error("Reason is empty")
			}
		})
	}
}

func TestDecide_SkipNeverInvokes(t *testing.T) {
	g := New()
	for _, c := range DefaultCategories() {
		if c.Kind != KindSkip {
			continue
		}
		for _, kw := range c.Keywords {
			res := g.Decide("please "+kw, model.HighestTier, 0, classify.Metadata{}, snap(1e9, 0))
			if !strings.HasPrefix(res.Category, "SKIP:") {
				t.Errorf("%q categorized as %s", kw, res.Category)
			}
			if res.Decision == Invoke {
				t.Errorf("%q returned INVOKE", kw)
			}
		}
	}
}

func TestRecommendDegradation(t *testing.T) {
	g := New(WithSubstitute("cheap"))

	tests := []struct {
		res  Result
		want model.ModelName
	}{
		{Result{Decision: Invoke, Tier: model.TierFull}, ""},
		{Result{Decision: BudgetBlock, Tier: model.TierSimple}, "cheap"},
		{Result{Decision: Skip, Tier: model.TierFull}, "cheap"},
		{Result{Decision: Skip, Tier: model.TierLite}, ""},
	}
	for _, tt := range tests {
		if got := g.RecommendDegradation(tt.res); got != tt.want {
			t.Errorf("RecommendDegradation(%+v) = %q, want %q", tt.res, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	g := New(
		WithGateFraction(0.10),
		WithMinInvoke(5),
		WithCategories([]Category{{Name: "ops", Kind: KindMandatory, Keywords: []string{"incident"}}}),
	)

	res := g.Decide("incident review", model.TierSimple, 0, classify.Metadata{}, snap(100, 96))
	assert.Equal(t, BudgetBlock, res.Decision)
	assert.Equal(t, "MANDATORY:ops", res.Category)

	res = g.Decide("hello", model.TierFull, 0, classify.Metadata{}, snap(100, 11))
	assert.Equal(t, BudgetBlock, res.Decision)
	assert.InDelta(t, 10.0, res.GateThreshold, 1e-9)

	m := g.Categorize("nothing here")
	assert.Equal(t, "NONE", m.Label())
}
