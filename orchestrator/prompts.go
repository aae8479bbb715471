package orchestrator

import (
	"fmt"
	"strings"
)

// System instructions per seat.
const (
	sysCostArchitect = "You are a cost architect. Weigh cost against benefit, sketch a technical approach and name its key components."
	sysWebResearch   = "You are a web research assistant. Find current information relevant to the query."
	sysAuditor       = "You are an auditor. Look for security risks, logic flaws, edge cases and scaling limits. Call out BLOCKER issues first."
	sysIdeator       = "You are an ideator. Offer alternatives and creative options quickly."
	sysContextualist = "You are a contextualist. Find existing patterns, integration points and reusable pieces."
	sysSemiFinal     = "You are the semi-final judge. Combine the perspectives, list open concerns, and end with one of APPROVED, CONDITIONAL or NEEDS_DEBATE."
	sysFinalJudge    = "You are the final judge. Review the assessment and issue a decree with a clear rationale."
	sysResponder     = "You are a precise senior engineer. Answer directly."
	sysBrainstorm    = "You are a brainstorming assistant. Produce %d distinct ideas as a numbered list. Favor range over polish."
	sysIdeaSynth     = "You organize ideas from several sources: merge duplicates, group related ones and rank by value and feasibility."
	sysRefine        = "You are a %s. Be specific."
	sysReviewer      = `You are a build reviewer. Check that an implementation matches its specification. Separate blockers from warnings from passing items.

Format the answer as:
VERDICT: APPROVED, CONDITIONAL or REJECTED

CRITERIA REVIEW:
[Pass/Fail/Warning] - criterion
- specific feedback

RECOMMENDATIONS:
actionable fixes for any issue`
)

const noContext = "(no context was gathered)"

func contextPrompt(query, extra string) string {
	return strings.TrimSpace(fmt.Sprintf("Query: %s\n\n%s", query, extra))
}

func deliberationPrompt(query, gathered string) string {
	if strings.TrimSpace(gathered) == "" {
		gathered = noContext
	}
	return fmt.Sprintf(`Original query: %s

Context gathered so far:
%s

Analyze the question from your role's point of view.`, query, gathered)
}

func synthesisPrompt(query, deliberation string) string {
	if strings.TrimSpace(deliberation) == "" {
		deliberation = "(no deliberation output)"
	}
	return fmt.Sprintf(`Original query: %s

Deliberation:
%s

Provide:
1. Your assessment of the approach
2. Remaining concerns or gaps
3. Recommendation: APPROVED, CONDITIONAL (state what must change) or NEEDS_DEBATE`, query, deliberation)
}

func ratificationPrompt(query, assessment string) string {
	return fmt.Sprintf(`Original query: %s

Semi-final assessment:
%s

Issue the final decree, one of:
- APPROVED: ready to build
- CONDITIONAL: fix the named items first
- REJECTED: not viable

Give the rationale and the implementation phases.`, query, assessment)
}

func architectPrompt(topic, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose a high-level technical solution for: %s\n", topic)
	if focus != "" {
		fmt.Fprintf(&b, "Focus the analysis on: %s.\n", focus)
	}
	b.WriteString(`
Answer in four parts:
1) Problem Statement
2) Recommended Approach
3) Key Components
4) Potential Risks`)
	return b.String()
}

func auditorPrompt(proposal string) string {
	return fmt.Sprintf(`Review this proposal.

PROPOSAL:
%s

Cover security weaknesses, logic flaws and edge cases, scaling concerns, and anything missing. Make each point actionable.`, proposal)
}

func contextualistPrompt(proposal, critique, extra string) string {
	p := fmt.Sprintf(`Analyze the proposal and its critique against the existing system.

PROPOSAL:
%s

AUDITOR'S CRITIQUE:
%s

Cover existing patterns to follow, integration points, lessons from project history, and how to align with the current architecture.`, proposal, critique)
	if extra != "" {
		p += "\n\nProject context:\n" + extra
	}
	return p
}

func judgePrompt(proposal, critique, analysis string) string {
	return fmt.Sprintf(`Decide, using the proposal, the critique and the contextual analysis below.

PROPOSAL:
%s

AUDITOR'S CRITIQUE:
%s

CONTEXTUALIST'S ANALYSIS:
%s

Answer with these sections:
## Decision
## Rationale
## Risks
## Implementation Plan

End with a verdict line: APPROVED, CONDITIONAL or REJECTED.`, proposal, critique, analysis)
}

func researchPrompt(query, findings string) string {
	if strings.TrimSpace(findings) == "" {
		return query
	}
	return fmt.Sprintf("%s\n\n%s", query, findings)
}

func ideaSynthesisPrompt(topic string, ideas []Idea, keep int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TOPIC: %s\n\nIDEAS:\n", topic)
	for i, idea := range ideas {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, idea.Text, idea.Source)
	}
	fmt.Fprintf(&b, "\nMerge duplicates, group related ideas, rank them and return the top %d as a numbered list:\n1. [title] - [short description]", keep)
	return b.String()
}

func refinePrompt(role, input, extra string) string {
	p := fmt.Sprintf(`Act as a %s. Review and improve the text below.

INPUT:
%s
`, role, input)
	if extra != "" {
		p += "\nContext:\n" + extra + "\n"
	}
	p += `
Identify flaws, check assumptions, and state concerns and recommended improvements. Return the improved text. If the input cannot be salvaged, reject it and explain why.`
	return p
}
