package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFallbackCycle indicates a fallback chain that leads back to itself.
var ErrFallbackCycle = errors.New("fallback chain contains a cycle")

// FallbackChain maps a model alias to the alias tried next when a call
// fails for a non-timeout reason. It is static configuration.
type FallbackChain map[ModelName]ModelName

// DefaultFallbacks returns the built-in fallback chain. opus-synthesis falls
// back to claude-sonnet, so claude-sonnet itself has no fallback.
func DefaultFallbacks() FallbackChain {
	return FallbackChain{
		ModelGeminiFlash:          ModelGeminiFlashFallback,
		ModelGeminiFlashLatest:    ModelGeminiFlash,
		ModelDeepSeekV3:           ModelGeminiFlash,
		ModelKimiResearcher:       ModelKimiSynthesis,
		ModelKimiSynthesis:        ModelClaudeSonnet,
		ModelKimiDeep:             ModelKimiSynthesis,
		ModelOpusSynthesis:        ModelClaudeSonnet,
		ModelGeminiArchitect:      ModelGeminiFlash,
		ModelGeminiSemifinal:      ModelClaudeSonnet,
		ModelGeminiPro:            ModelClaudeSonnet,
		ModelGeminiProLatest:      ModelGeminiPro,
		ModelPerplexityOnline:     ModelGeminiFlash,
		ModelPerplexityResearcher: ModelGeminiFlash,
	}
}

// FromStrings builds a chain from string keys and values, normalizing
// surrounding whitespace. Empty targets are dropped.
func FromStrings(m map[string]string) FallbackChain {
	c := make(FallbackChain, len(m))
	for k, v := range m {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		c[ModelName(k)] = ModelName(v)
	}
	return c
}

// Next returns the configured fallback for model.
func (c FallbackChain) Next(model ModelName) (ModelName, bool) {
	next, ok := c[model]
	return next, ok
}

// Validate returns an error wrapping ErrFallbackCycle if following the chain
// from any alias revisits an alias.
func (c FallbackChain) Validate() error {
	starts := make([]ModelName, 0, len(c))
	for m := range c {
		starts = append(starts, m)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, start := range starts {
		seen := map[ModelName]bool{start: true}
		path := []string{string(start)}
		cur := start
		for {
			next, ok := c[cur]
			if !ok {
				break
			}
			path = append(path, string(next))
			if seen[next] {
				return fmt.Errorf("%w: %s", ErrFallbackCycle, strings.Join(path, " -> "))
			}
			seen[next] = true
			cur = next
		}
	}
	return nil
}

// Resolve returns the ordered list of aliases to try for model: the model
// itself followed by each fallback. Resolution stops at the first repeated
// alias, so the result is finite even for an unvalidated chain.
func (c FallbackChain) Resolve(model ModelName) []ModelName {
	chain := []ModelName{model}
	seen := map[ModelName]bool{model: true}
	cur := model
	for {
		next, ok := c[cur]
		if !ok || seen[next] {
			return chain
		}
		chain = append(chain, next)
		seen[next] = true
		cur = next
	}
}

// Clone returns a copy of the chain.
func (c FallbackChain) Clone() FallbackChain {
	out := make(FallbackChain, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
