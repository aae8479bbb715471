package truncate

// Step names a place where upstream output is embedded into a later prompt.
type Step string

// Embedding steps.
const (
	// StepAuditor embeds the Architect proposal into the Auditor prompt.
	StepAuditor Step = "auditor"

	// StepContextualist embeds proposal and critique into the Contextualist prompt.
	StepContextualist Step = "contextualist"

	// StepJudge embeds all three prior debate outputs into the Judge prompt.
	StepJudge Step = "judge"

	// StepDeliberation embeds each context response into a deliberation prompt.
	StepDeliberation Step = "deliberation"

	// StepSynthesis embeds each deliberation response into a synthesis prompt.
	StepSynthesis Step = "synthesis"

	// StepRefine embeds the previous refinement round into the next one.
	StepRefine Step = "refine"

	// StepSection bounds a structured field extracted from model output.
	StepSection Step = "section"
)

// EmbedSuffix marks embedded text that was cut.
const EmbedSuffix = "\n...[truncated]"

// DefaultEmbedLimit applies to steps without a configured budget.
const DefaultEmbedLimit = 2000

// DefaultBudgets are the character budgets per embedding step.
var DefaultBudgets = map[Step]int{
	StepAuditor:       1500,
	StepContextualist: 800,
	StepJudge:         600,
	StepDeliberation:  4000,
	StepSynthesis:     4000,
	StepRefine:        8000,
	StepSection:       500,
}

// Embedder bounds upstream output before it is inserted into a prompt.
// It is safe for concurrent use once built.
type Embedder struct {
	budgets map[Step]int
}

// NewEmbedder returns an Embedder using DefaultBudgets with the given
// overrides applied. Non-positive overrides are ignored.
func NewEmbedder(overrides map[Step]int) *Embedder {
	budgets := make(map[Step]int, len(DefaultBudgets)+len(overrides))
	for k, v := range DefaultBudgets {
		budgets[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			budgets[k] = v
		}
	}
	return &Embedder{budgets: budgets}
}

// Limit returns the character budget of a step.
func (e *Embedder) Limit(step Step) int {
	if n, ok := e.budgets[step]; ok {
		return n
	}
	return DefaultEmbedLimit
}

// Embed returns text bounded to the budget of step.
func (e *Embedder) Embed(step Step, text string) string {
	return Embed(text, e.Limit(step))
}

// Embed bounds text to limit characters, preferring a line break in the
// last fifth of the kept text and marking the cut with EmbedSuffix.
func Embed(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	result, _ := NewFromEnd().
		WithUnit(Runes).
		WithSuffix(EmbedSuffix).
		WithLineBreak(0.8).
		Truncate(text, limit)
	return result
}
