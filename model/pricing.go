package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Price holds the resolved pricing of a council alias.
type Price struct {
	// Model is the provider model identifier the alias resolves to.
	Model string `json:"model" toml:"model"`

	InputPerMillion  float64 `json:"input_per_million" toml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" toml:"output_per_million"`

	// PerSearch is a flat charge per call. Non-zero only for search aliases.
	PerSearch float64 `json:"per_search,omitempty" toml:"per_search"`
}

// IsFlat reports whether the alias is billed per call instead of per token.
func (p Price) IsFlat() bool {
	return p.PerSearch > 0
}

// UnknownPrice is charged for aliases missing from the table.
var UnknownPrice = Price{InputPerMillion: 1.0, OutputPerMillion: 5.0}

// OutputProfile describes how many output tokens a model is expected to
// produce for a given input size.
type OutputProfile struct {
	// Multiplier scales the base estimate of half the input tokens.
	Multiplier float64 `json:"multiplier"`

	// Ceiling caps the scaled estimate.
	Ceiling int `json:"ceiling"`

	// Fixed, when set, replaces the estimate entirely.
	Fixed int `json:"fixed,omitempty"`
}

// Estimate returns the expected output tokens for inputTokens.
func (p OutputProfile) Estimate(inputTokens int) int {
	if p.Fixed > 0 {
		return p.Fixed
	}
	base := float64(inputTokens) * 0.5
	est := int(base * p.Multiplier)
	if p.Ceiling > 0 && est > p.Ceiling {
		return p.Ceiling
	}
	return est
}

// classOutputs are the profiles used when a model has none of its own.
var classOutputs = map[Class]OutputProfile{
	ClassStandard:  {Multiplier: 1.0, Ceiling: 2000},
	ClassFast:      {Multiplier: 0.5, Ceiling: 1000},
	ClassSynthesis: {Multiplier: 1.5, Ceiling: 4000},
	ClassSearch:    {Fixed: 300},
}

var million = decimal.NewFromInt(1_000_000)

// PricingTable is a read-only lookup of per-alias pricing and output
// profiles. Use With to derive a modified copy.
type PricingTable struct {
	prices  map[ModelName]Price
	outputs map[ModelName]OutputProfile
}

// NewPricingTable builds a table from the given maps. The maps are copied.
func NewPricingTable(prices map[ModelName]Price, outputs map[ModelName]OutputProfile) *PricingTable {
	t := &PricingTable{
		prices:  make(map[ModelName]Price, len(prices)),
		outputs: make(map[ModelName]OutputProfile, len(outputs)),
	}
	for k, v := range prices {
		t.prices[k] = v
	}
	for k, v := range outputs {
		t.outputs[k] = v
	}
	return t
}

// DefaultPricing returns the built-in pricing table (USD per million tokens).
func DefaultPricing() *PricingTable {
	var (
		opus       = Price{Model: "claude-opus-4-5-20251101", InputPerMillion: 15.0, OutputPerMillion: 75.0}
		sonnet     = Price{Model: "claude-sonnet-4-20250514", InputPerMillion: 3.0, OutputPerMillion: 15.0}
		flash      = Price{Model: "gemini-2.0-flash", InputPerMillion: 0.075, OutputPerMillion: 0.30}
		flashExp   = Price{Model: "gemini-2.0-flash-exp", InputPerMillion: 0.075, OutputPerMillion: 0.30}
		geminiPro3 = Price{Model: "gemini-3-pro-preview"}
		dsChat     = Price{Model: "deepseek-chat", InputPerMillion: 0.27, OutputPerMillion: 1.10}
		dsReason   = Price{Model: "deepseek-reasoner", InputPerMillion: 0.55, OutputPerMillion: 2.19}
		kimiTurbo  = Price{Model: "kimi-k2-thinking-turbo", InputPerMillion: 1.20, OutputPerMillion: 12.0}
		kimiThink  = Price{Model: "kimi-k2-thinking", InputPerMillion: 1.20, OutputPerMillion: 12.0}
		kimi25     = Price{Model: "kimi-k2.5", InputPerMillion: 1.20, OutputPerMillion: 12.0}
	)

	prices := map[ModelName]Price{
		ModelOpusSynthesis:       opus,
		ModelClaudeSonnet:        sonnet,
		ModelGeminiArchitect:     flashExp,
		ModelGeminiFlash:         flash,
		ModelGeminiFlashLatest:   flashExp,
		ModelGeminiFlashFallback: flash,
		ModelGeminiSemifinal:     flash,
		ModelGeminiPro:           flashExp,
		ModelGeminiProLatest:     geminiPro3,
		ModelDeepSeekV3:          dsChat,
		ModelDeepSeekSecurity:    dsReason,
		ModelKimiResearcher:      kimiTurbo,
		ModelKimiDeep:            kimiThink,
		ModelKimiSynthesis:       kimi25,

		ModelPerplexityOnline:     {Model: "sonar-medium-online", PerSearch: 0.002},
		ModelPerplexityResearcher: {Model: "sonar-small-online", PerSearch: 0.001},
	}

	outputs := map[ModelName]OutputProfile{
		ModelClaudeSonnet:         {Multiplier: 1.0, Ceiling: 2000},
		ModelDeepSeekV3:           {Multiplier: 0.8, Ceiling: 2000},
		ModelGeminiFlash:          {Multiplier: 0.5, Ceiling: 1000},
		ModelKimiResearcher:       {Multiplier: 1.5, Ceiling: 2000},
		ModelGeminiPro:            {Multiplier: 2.0, Ceiling: 5000},
		ModelOpusSynthesis:        {Multiplier: 1.5, Ceiling: 4000},
		ModelPerplexityOnline:     {Fixed: 500},
		ModelPerplexityResearcher: {Fixed: 300},
	}

	return NewPricingTable(prices, outputs)
}

// Lookup returns the price of an alias.
func (t *PricingTable) Lookup(model ModelName) (Price, bool) {
	p, ok := t.prices[model]
	return p, ok
}

// ProviderModel returns the provider identifier for an alias, or the alias
// itself when the table has no mapping.
func (t *PricingTable) ProviderModel(model ModelName) string {
	if p, ok := t.prices[model]; ok && p.Model != "" {
		return p.Model
	}
	return string(model)
}

// Output returns the output profile for an alias, falling back to the
// profile of its class.
func (t *PricingTable) Output(model ModelName) OutputProfile {
	if p, ok := t.outputs[model]; ok {
		return p
	}
	return classOutputs[ClassForModel(model)]
}

// Cost returns the USD cost of a call, rounded to 6 decimal places.
// Flat-priced aliases ignore token counts. Unknown aliases use UnknownPrice.
func (t *PricingTable) Cost(model ModelName, inputTokens, outputTokens int) float64 {
	return t.CostDecimal(model, inputTokens, outputTokens).InexactFloat64()
}

// CostDecimal is Cost without the conversion to float64.
func (t *PricingTable) CostDecimal(model ModelName, inputTokens, outputTokens int) decimal.Decimal {
	p, ok := t.prices[model]
	if !ok {
		p = UnknownPrice
	}
	if p.IsFlat() {
		return decimal.NewFromFloat(p.PerSearch).Round(6)
	}

	in := decimal.NewFromInt(int64(inputTokens)).Div(million).Mul(decimal.NewFromFloat(p.InputPerMillion))
	out := decimal.NewFromInt(int64(outputTokens)).Div(million).Mul(decimal.NewFromFloat(p.OutputPerMillion))
	return in.Add(out).Round(6)
}

// Models returns the priced aliases sorted by name.
func (t *PricingTable) Models() []ModelName {
	out := make([]ModelName, 0, len(t.prices))
	for m := range t.prices {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// With returns a copy of the table with the given prices replacing or
// adding entries.
func (t *PricingTable) With(overrides map[ModelName]Price) *PricingTable {
	clone := NewPricingTable(t.prices, t.outputs)
	for k, v := range overrides {
		clone.prices[k] = v
	}
	return clone
}
