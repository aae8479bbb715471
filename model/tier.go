package model

import (
	"fmt"
	"sort"
	"time"
)

// Tier is a cost/latency bucket for an incoming query.
type Tier string

// Tier constants, cheapest first.
const (
	TierSimple   Tier = "tier_1"
	TierResearch Tier = "tier_2"
	TierFull     Tier = "tier_3"
	TierLite     Tier = "tier_3_lite"
)

// HighestTier is the tier that runs the full council, final arbiter included.
const HighestTier = TierFull

// DefaultBudgetShare is the monthly budget share of a tier that has none configured.
const DefaultBudgetShare = 0.20

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierSimple, TierResearch, TierFull, TierLite:
		return true
	}
	return false
}

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// CostRange is an estimated cost interval in USD.
type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TierConfig is the static configuration of one tier.
type TierConfig struct {
	Tier        Tier          `json:"tier"`
	Models      []ModelName   `json:"models"`
	Cost        CostRange     `json:"cost"`
	Latency     time.Duration `json:"latency"`
	BudgetShare float64       `json:"budget_share"`
}

// TierSet maps each tier to its configuration. It is read-only after
// construction.
type TierSet map[Tier]TierConfig

// DefaultTiers returns the built-in tier configuration.
func DefaultTiers() TierSet {
	return TierSet{
		TierSimple: {
			Tier:        TierSimple,
			Models:      []ModelName{ModelClaudeSonnet},
			Cost:        CostRange{Min: 0.001, Max: 0.005},
			Latency:     5 * time.Second,
			BudgetShare: 0.20,
		},
		TierResearch: {
			Tier:        TierResearch,
			Models:      []ModelName{ModelPerplexityResearcher, ModelClaudeSonnet},
			Cost:        CostRange{Min: 0.003, Max: 0.010},
			Latency:     15 * time.Second,
			BudgetShare: 0.40,
		},
		TierFull: {
			Tier: TierFull,
			Models: []ModelName{
				ModelKimiResearcher, ModelPerplexityOnline, ModelDeepSeekV3,
				ModelGeminiFlash, ModelClaudeSonnet, ModelGeminiPro, ModelOpusSynthesis,
			},
			Cost:        CostRange{Min: 0.10, Max: 0.30},
			Latency:     45 * time.Second,
			BudgetShare: 0.40,
		},
		TierLite: {
			Tier: TierLite,
			Models: []ModelName{
				ModelKimiResearcher, ModelDeepSeekV3, ModelClaudeSonnet, ModelGeminiPro,
			},
			Cost:        CostRange{Min: 0.05, Max: 0.15},
			Latency:     25 * time.Second,
			BudgetShare: DefaultBudgetShare,
		},
	}
}

// Get returns the configuration for a tier.
func (s TierSet) Get(t Tier) (TierConfig, bool) {
	cfg, ok := s[t]
	return cfg, ok
}

// Models returns a copy of the model list for a tier, or nil if unknown.
func (s TierSet) Models(t Tier) []ModelName {
	cfg, ok := s[t]
	if !ok {
		return nil
	}
	out := make([]ModelName, len(cfg.Models))
	copy(out, cfg.Models)
	return out
}

// Share returns the budget share of a tier. Unconfigured tiers and tiers
// with a zero share get DefaultBudgetShare.
func (s TierSet) Share(t Tier) float64 {
	if cfg, ok := s[t]; ok && cfg.BudgetShare > 0 {
		return cfg.BudgetShare
	}
	return DefaultBudgetShare
}

// Tiers returns the configured tiers sorted by name.
func (s TierSet) Tiers() []Tier {
	out := make([]Tier, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
