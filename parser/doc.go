// Package parser extracts structured content from model responses.
//
// Core types:
//   - Response: sections, labelled fields and the verdict of a response
//   - Parser: extracts sections, fields, lists and idea arrays
//   - Verdict: APPROVED, CONDITIONAL, REJECTED or UNCLEAR
//
// Example usage:
//
//	p := parser.NewParser()
//	resp := p.Parse(judgeOutput)
//	decision := p.ExtractSection(judgeOutput, "Decision")
//	ideas := p.ExtractIdeas(brainstormOutput)
//
// # Verdicts
//
// ExtractVerdict scans case-insensitively, most conservative first:
// REJECTED, then CONDITIONAL or NEEDS_DEBATE, then APPROVED. Text with none
// of these is UNCLEAR. Text mentioning both APPROVED and CONDITIONAL is
// CONDITIONAL.
package parser
