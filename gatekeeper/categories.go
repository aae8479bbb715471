package gatekeeper

import "strings"

// Kind separates categories that demand the expensive model from those that
// never need it.
type Kind string

// Category kinds.
const (
	KindMandatory Kind = "MANDATORY"
	KindSkip      Kind = "SKIP"
	KindNone      Kind = "NONE"
)

// Category is a named keyword set.
type Category struct {
	Name     string   `json:"name" yaml:"name"`
	Kind     Kind     `json:"kind" yaml:"kind"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// DefaultCategories returns the built-in category table. Order matters: the
// first category with a matching keyword wins.
func DefaultCategories() []Category {
	return []Category{
		{Name: "strategy", Kind: KindMandatory, Keywords: []string{
			"strategy", "strategic", "roadmap", "vision", "long-term",
			"architecture decision", "system design", "tech stack choice",
			"should we", "which approach", "evaluate options", "compare",
		}},
		{Name: "architecture", Kind: KindMandatory, Keywords: []string{
			"architecture", "design", "refactor", "restructure", "pattern",
			"system", "module", "component", "integration", "api design",
			"database design", "schema", "workflow", "pipeline",
		}},
		{Name: "client_communication", Kind: KindMandatory, Keywords: []string{
			"client", "customer", "stakeholder", "presentation", "proposal",
			"explain to", "communicate", "report", "executive summary",
		}},
		{Name: "executive", Kind: KindMandatory, Keywords: []string{
			"executive", "leadership", "decision", "approve", "authorize",
			"budget", "timeline", "resource allocation", "priority",
		}},
		{Name: "code_implementation", Kind: KindSkip, Keywords: []string{
			"implement this", "write code", "create function", "add method",
			"implement", "build this", "code this",
		}},
		{Name: "simple_debugging", Kind: KindSkip, Keywords: []string{
			"fix this bug", "debug", "error in", "not working",
			"throws error", "fails", "broken",
		}},
		{Name: "syntax_error", Kind: KindSkip, Keywords: []string{
			"syntax error", "parse error", "indentation", "missing",
			"unexpected token", "invalid syntax",
		}},
	}
}

// Match is the category a query fell into.
type Match struct {
	Kind       Kind
	Name       string
	Keyword    string
	Confidence float64
}

// Label renders the match as "KIND:name", or "NONE".
func (m Match) Label() string {
	if m.Kind == KindNone || m.Kind == "" {
		return string(KindNone)
	}
	return string(m.Kind) + ":" + m.Name
}

// categorize checks mandatory categories, then skip categories, in table
// order.
func categorize(categories []Category, query string) Match {
	lower := strings.ToLower(query)
	for _, kind := range []Kind{KindMandatory, KindSkip} {
		for _, c := range categories {
			if c.Kind != kind {
				continue
			}
			for _, kw := range c.Keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					return Match{Kind: kind, Name: c.Name, Keyword: kw, Confidence: 0.9}
				}
			}
		}
	}
	return Match{Kind: KindNone, Confidence: 0.5}
}
