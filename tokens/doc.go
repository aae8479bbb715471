// Package tokens estimates token counts for prompts.
//
// Estimation uses the rule of thumb that about 4 characters make 1 token.
// It needs no tokenizer and is good enough for budgeting and truncation.
//
//	counter := tokens.NewEstimatingCounter()
//	count := counter.Count("Hello, world!")   // ~3 tokens
//	fits := counter.FitsInLimit(text, 1000)
//
// Cost estimation rounds down so an estimate is never more than a quarter
// token per character:
//
//	counter := tokens.NewFlooringCounter()
//	input := counter.Count(query + "\n" + context)
package tokens
