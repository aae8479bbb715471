package classify

import "strings"

// Intent is the protocol a free-form request most likely wants.
type Intent string

// Intents. IntentAuto means no keyword matched and the tier router decides.
const (
	IntentBrainstorm Intent = "brainstorm"
	IntentRefine     Intent = "refine"
	IntentPlan       Intent = "plan"
	IntentAuto       Intent = "auto"
)

// IntentRule scores an intent by how many of its keywords appear.
type IntentRule struct {
	Intent   Intent   `json:"intent" yaml:"intent"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Keyword lists used by the default intent rules.
var (
	BrainstormKeywords = []string{
		"ways to", "ideas for", "brainstorm", "list possible", "generate ideas",
		"what are possible", "suggest", "options for", "alternatives",
		"could we", "what if", "how might we", "multiple approaches",
	}

	RefineKeywords = []string{
		"review", "improve", "refine", "critique", "analyze this",
		"find flaws", "better approach", "enhance", "polish",
		"fix this", "optimize", "strengthen", "validate",
	}

	PlanKeywords = []string{
		"build", "implement", "create", "specify", "design system",
		"architecture for", "implementation plan", "how to build",
		"spec for", "technical specification", "generate build plan",
		"i need to build", "want to create", "help me design",
	}
)

// DefaultIntentRules returns the built-in intent table. Order breaks ties.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{Intent: IntentBrainstorm, Keywords: BrainstormKeywords},
		{Intent: IntentRefine, Keywords: RefineKeywords},
		{Intent: IntentPlan, Keywords: PlanKeywords},
	}
}

// intentSaturation is the keyword count at which confidence reaches 1.
const intentSaturation = 3

// DetectIntent scores text against rules and returns the best intent with a
// confidence in [0, 1]. The earliest rule wins a tie. No match returns
// IntentAuto with zero confidence. A nil rules slice uses the defaults.
func DetectIntent(text string, rules []IntentRule) (Intent, float64) {
	if rules == nil {
		rules = DefaultIntentRules()
	}
	lower := strings.ToLower(text)

	best, bestScore := IntentAuto, 0
	for _, r := range rules {
		score := 0
		for _, kw := range r.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r.Intent, score
		}
	}
	if bestScore == 0 {
		return IntentAuto, 0
	}
	return best, min(float64(bestScore)/intentSaturation, 1)
}

var commandIntents = map[string]Intent{
	"brainstorm": IntentBrainstorm,
	"brain":      IntentBrainstorm,
	"ideas":      IntentBrainstorm,
	"refine":     IntentRefine,
	"refinement": IntentRefine,
	"critique":   IntentRefine,
	"review":     IntentRefine,
	"plan":       IntentPlan,
	"spec":       IntentPlan,
	"specify":    IntentPlan,
	"build":      IntentPlan,
}

// IntentForCommand maps a command alias such as "ideas" or "spec" to its
// intent. Unknown commands return IntentAuto.
func IntentForCommand(cmd string) Intent {
	if in, ok := commandIntents[strings.ToLower(strings.TrimSpace(cmd))]; ok {
		return in
	}
	return IntentAuto
}
