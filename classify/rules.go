package classify

import (
	"strings"

	"github.com/randalmurphal/council/model"
)

// Rule maps a match condition to a tier.
type Rule struct {
	Name string     `json:"name" yaml:"name"`
	Tier model.Tier `json:"tier" yaml:"tier"`

	// Tags match "@tag" in the query or an entry in Metadata.Tags.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Keywords match as lowercase substrings of the query. Leading and
	// trailing spaces are significant.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// MinTokens additionally requires the query to be at least this long.
	MinTokens int `json:"min_tokens,omitempty" yaml:"min_tokens,omitempty"`

	// MinFiles additionally requires Metadata.FileCount to reach this value.
	MinFiles int `json:"min_files,omitempty" yaml:"min_files,omitempty"`
}

// Keyword lists used by the default rules.
var (
	SimpleImplementationKeywords = []string{
		"implement a", "implement the", "create a", "create the",
		"write a", "write the", "add a", "add the",
		"fix this", "debug", "syntax error", "indentation",
	}

	ExternalDocsKeywords = []string{
		"pricing", "latest version", "current docs", "documentation",
		"api reference", "changelog", "release notes", "official docs",
	}

	ArchitectureKeywords = []string{
		"architecture", "design", "refactor", "restructure",
		"system", "module", "component", "integration", "api design", "database design",
		"schema", "workflow", "pipeline", "strategy", "pattern",
		" vs ", " versus ", " or ", " compare ", " which ", " should we use ",
		"microservices", "monolith", "postgresql", "mongodb", "mysql",
	}
)

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "tag:council_v2", Tier: model.TierFull, Tags: []string{"council_v2"}},
		{Name: "tag:council_lite", Tier: model.TierLite, Tags: []string{"council_lite"}},
		{Name: "tag:research", Tier: model.TierResearch, Tags: []string{"research"}},
		{Name: "simple_implementation", Tier: model.TierSimple, Keywords: SimpleImplementationKeywords},
		{Name: "external_docs", Tier: model.TierResearch, Keywords: ExternalDocsKeywords},
		{Name: "architecture", Tier: model.TierFull, Keywords: ArchitectureKeywords},
	}
}

// match reports whether the rule applies and which tag or keyword hit.
func (r Rule) match(lower string, tokenCount int, md Metadata) (string, bool) {
	if tokenCount < r.MinTokens || md.FileCount < r.MinFiles {
		return "", false
	}

	for _, tag := range r.Tags {
		tag = strings.ToLower(strings.TrimPrefix(tag, "@"))
		if strings.Contains(lower, "@"+tag) || md.hasTag(tag) {
			return "@" + tag, true
		}
	}
	for _, kw := range r.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}

	// A rule with thresholds only applies once they are met.
	if len(r.Tags) == 0 && len(r.Keywords) == 0 && (r.MinTokens > 0 || r.MinFiles > 0) {
		return "", true
	}
	return "", false
}
