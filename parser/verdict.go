package parser

import "strings"

// Verdict is a recommendation token extracted from model output.
type Verdict string

// Verdict values.
const (
	VerdictApproved    Verdict = "APPROVED"
	VerdictConditional Verdict = "CONDITIONAL"
	VerdictRejected    Verdict = "REJECTED"
	VerdictUnclear     Verdict = "UNCLEAR"
)

// verdictRule maps any of its tokens to a verdict.
type verdictRule struct {
	verdict Verdict
	tokens  []string
}

// verdictRules are evaluated top to bottom; the most conservative verdict
// comes first so mixed text never reads as an approval.
var verdictRules = []verdictRule{
	{verdict: VerdictRejected, tokens: []string{"REJECTED"}},
	{verdict: VerdictConditional, tokens: []string{"CONDITIONAL", "NEEDS_DEBATE"}},
	{verdict: VerdictApproved, tokens: []string{"APPROVED"}},
}

// ExtractVerdict scans text case-insensitively and returns the first
// matching verdict, or VerdictUnclear.
func ExtractVerdict(text string) Verdict {
	upper := strings.ToUpper(text)
	for _, rule := range verdictRules {
		for _, token := range rule.tokens {
			if strings.Contains(upper, token) {
				return rule.verdict
			}
		}
	}
	return VerdictUnclear
}

// IsApproved reports whether v is exactly VerdictApproved.
func (v Verdict) IsApproved() bool {
	return v == VerdictApproved
}
