package model

import "strings"

// ModelName is a council model alias as understood by the gateway.
type ModelName string

// Anthropic aliases.
const (
	ModelClaudeSonnet  ModelName = "claude-sonnet"
	ModelOpusSynthesis ModelName = "opus-synthesis"
)

// Gemini aliases.
const (
	ModelGeminiPro           ModelName = "gemini-pro"
	ModelGeminiProLatest     ModelName = "gemini-pro-latest"
	ModelGeminiFlash         ModelName = "gemini-flash"
	ModelGeminiFlashLatest   ModelName = "gemini-flash-latest"
	ModelGeminiFlashFallback ModelName = "gemini-flash-fallback"
	ModelGeminiArchitect     ModelName = "gemini-architect"
	ModelGeminiSemifinal     ModelName = "gemini-3-pro-semifinal"
)

// DeepSeek aliases.
const (
	ModelDeepSeekV3       ModelName = "deepseek-v3"
	ModelDeepSeekSecurity ModelName = "deepseek-security"
)

// Kimi aliases.
const (
	ModelKimiResearcher ModelName = "kimi-researcher"
	ModelKimiSynthesis  ModelName = "kimi-synthesis"
	ModelKimiDeep       ModelName = "kimi-deep"
)

// Search-style aliases. These are billed per search, not per token.
const (
	ModelPerplexityOnline     ModelName = "perplexity-online"
	ModelPerplexityResearcher ModelName = "perplexity-researcher"
)

// Class groups models by how much output they are expected to produce.
type Class int

// Class constants.
const (
	ClassStandard Class = iota
	ClassFast
	ClassSynthesis
	ClassSearch
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassStandard:
		return "standard"
	case ClassFast:
		return "fast"
	case ClassSynthesis:
		return "synthesis"
	case ClassSearch:
		return "search"
	default:
		return "unknown"
	}
}

// ClassForModel returns the output class for a model alias.
func ClassForModel(model ModelName) Class {
	switch NormalizeModelName(string(model)) {
	case ModelPerplexityOnline, ModelPerplexityResearcher:
		return ClassSearch
	case ModelOpusSynthesis, ModelGeminiPro, ModelGeminiProLatest,
		ModelGeminiSemifinal, ModelKimiSynthesis:
		return ClassSynthesis
	case ModelGeminiFlash, ModelGeminiFlashLatest, ModelGeminiFlashFallback:
		return ClassFast
	default:
		return ClassStandard
	}
}

// IsSearch reports whether the alias is served by the search backend.
func IsSearch(model ModelName) bool {
	return ClassForModel(model) == ClassSearch
}

// NormalizeModelName maps a provider model identifier back to its council
// alias. For example "claude-sonnet-4-20250514" becomes "claude-sonnet" and
// "sonar-medium-online" becomes "perplexity-online". Aliases and unknown
// names are returned lowercased and trimmed.
func NormalizeModelName(name string) ModelName {
	lower := strings.ToLower(strings.TrimSpace(name))

	switch {
	case strings.HasPrefix(lower, "claude-opus"):
		return ModelOpusSynthesis
	case strings.HasPrefix(lower, "claude-sonnet-"):
		return ModelClaudeSonnet
	case lower == "sonar-medium-online":
		return ModelPerplexityOnline
	case lower == "sonar-small-online":
		return ModelPerplexityResearcher
	case lower == "deepseek-chat":
		return ModelDeepSeekV3
	case lower == "deepseek-reasoner":
		return ModelDeepSeekSecurity
	case lower == "kimi-k2.5":
		return ModelKimiSynthesis
	}

	return ModelName(lower)
}
