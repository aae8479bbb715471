// Package truncate bounds text before it is embedded into a prompt.
//
// Sequential protocols feed each step's output into the next prompt. Without
// a bound, prompts grow with every step. All embedding goes through one
// utility with a documented character budget per step:
//
//	e := truncate.NewEmbedder(nil)
//	prompt := "Proposal:\n" + e.Embed(truncate.StepAuditor, proposal) // <= 1500 chars
//
// Default budgets (characters):
//
//	auditor        1500  architect proposal
//	contextualist   800  proposal and critique, each
//	judge           600  all three prior outputs, each
//	deliberation   4000  each context response
//	synthesis      4000  each deliberation response
//	refine         8000  previous refinement round
//	section         500  extracted structured field
//
// # Truncator
//
// Truncator supports three strategies measured in tokens or runes:
//
//	t := truncate.NewFromMiddle()
//	out, cut := t.Truncate(text, 2000) // tokens
//
//	t := truncate.NewFromEnd().WithUnit(truncate.Runes).WithLineBreak(0.8)
//
// # Convenience Functions
//
//	truncate.ToTokens(text, 1000)
//	truncate.ToLength(text, 200)
//	truncate.Smart(text, 200)  // prefers sentence/word boundaries
//	truncate.Output(text, 8000) // whole-step bound with a visible notice
package truncate
