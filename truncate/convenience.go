package truncate

import (
	"unicode/utf8"
)

// OutputNotice is appended to step outputs cut by Output.
const OutputNotice = "\n\n[Output truncated due to size limits...]\n"

// ToTokens truncates text to fit within the specified token limit.
// Uses end truncation with the default estimating counter.
func ToTokens(text string, maxTokens int) string {
	result, _ := NewFromEnd().Truncate(text, maxTokens)
	return result
}

// ToLength truncates text to a maximum character length.
// Properly handles UTF-8 by counting runes, not bytes.
func ToLength(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Output bounds a whole step output to maxChars characters. The cut lands on
// the last line break when one exists in the final fifth of the kept text,
// and OutputNotice marks the truncation.
func Output(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	result, _ := NewFromEnd().
		WithUnit(Runes).
		WithSuffix(OutputNotice).
		WithLineBreak(0.8).
		Truncate(text, maxChars)
	return result
}

// Smart attempts to truncate at word or sentence boundaries.
// Falls back to hard truncation if no good break point is found.
func Smart(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)
	if maxLen < 4 {
		return string(runes[:maxLen])
	}
	breakPoint := maxLen - 3

	for i := breakPoint; i > maxLen/2; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return string(runes[:i+1])
		}
	}

	for i := breakPoint; i > maxLen/2; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return string(runes[:i]) + "..."
		}
	}

	return string(runes[:breakPoint]) + "..."
}
