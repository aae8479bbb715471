// Package model holds the static model catalogue of the council: aliases,
// tiers, pricing, fallback chains and role selection.
//
// Everything here is configuration data. Values are built once at startup
// and are safe for concurrent reads afterwards.
//
// # Pricing
//
//	table := model.DefaultPricing()
//	cost := table.Cost(model.ModelClaudeSonnet, 1200, 600) // USD, 6 decimal places
//	out := table.Output(model.ModelGeminiPro).Estimate(1200)
//
// Search aliases (perplexity-online, perplexity-researcher) are billed per
// call regardless of token counts.
//
// # Tiers
//
//	tiers := model.DefaultTiers()
//	models := tiers.Models(model.TierFull)
//	share := tiers.Share(model.TierFull) // fraction of the monthly budget
//
// # Fallback Chains
//
// A fallback chain is validated once and then resolved per call:
//
//	chain := model.DefaultFallbacks()
//	if err := chain.Validate(); err != nil {
//	    return err // wraps model.ErrFallbackCycle
//	}
//	for _, alias := range chain.Resolve(model.ModelKimiResearcher) {
//	    // kimi-researcher, kimi-synthesis, claude-sonnet
//	}
//
// # Cost Tracking
//
//	tracker := model.NewCostTracker()
//	tracker.Record(model.ModelDeepSeekV3, 1000, 500, 0.00082, true)
//	total := tracker.TotalCost()
package model
