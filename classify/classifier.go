package classify

import (
	"strings"

	"github.com/randalmurphal/council/model"
)

// Metadata carries optional facts about a query.
type Metadata struct {
	// Tags are explicit routing tags, with or without the leading "@".
	Tags []string `json:"tags,omitempty"`

	// TaskType labels the query for tracking ("general", "review", ...).
	TaskType string `json:"task_type,omitempty"`

	// FileCount is the number of files the query touches.
	FileCount int `json:"file_count,omitempty"`
}

func (m Metadata) hasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(strings.TrimPrefix(t, "@"), tag) {
			return true
		}
	}
	return false
}

// Classification explains a tier decision.
type Classification struct {
	Tier    model.Tier `json:"tier"`
	Rule    string     `json:"rule"`
	Matched string     `json:"matched,omitempty"`
}

// Classifier evaluates an ordered rule table.
// It is read-only after construction and safe for concurrent use.
type Classifier struct {
	rules    []Rule
	fallback model.Tier
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces the rule table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = append([]Rule(nil), rules...)
	}
}

// WithDefaultTier sets the tier used when no rule matches.
func WithDefaultTier(t model.Tier) Option {
	return func(c *Classifier) {
		if t.Valid() {
			c.fallback = t
		}
	}
}

// New creates a classifier with DefaultRules.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:    DefaultRules(),
		fallback: model.TierSimple,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the tier for a query.
func (c *Classifier) Classify(query string, tokenCount int, md Metadata) model.Tier {
	return c.Explain(query, tokenCount, md).Tier
}

// Explain returns the tier for a query together with the rule that chose it.
func (c *Classifier) Explain(query string, tokenCount int, md Metadata) Classification {
	lower := strings.ToLower(query)
	for _, r := range c.rules {
		if matched, ok := r.match(lower, tokenCount, md); ok && r.Tier.Valid() {
			return Classification{Tier: r.Tier, Rule: r.Name, Matched: matched}
		}
	}
	return Classification{Tier: c.fallback, Rule: "default"}
}

var defaultClassifier = New()

// Classify uses the default rule table.
func Classify(query string, tokenCount int, md Metadata) model.Tier {
	return defaultClassifier.Classify(query, tokenCount, md)
}
