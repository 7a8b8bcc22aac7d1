// Package tokens approximates text length in model tokens. Counts are
// estimates for budgeting, not exact tokenizer output.
package tokens

import "unicode/utf8"

// Approximate tokens per character (conservative estimate, ~4 chars per token)
const TokensPerChar = 0.25

// Estimate returns a rough token count for a string. Deterministic and
// monotonic in the character count.
func Estimate(s string) int {
	return int(float64(len(s)) * TokensPerChar)
}

// Truncate cuts text so its estimated token count fits maxTokens,
// reserving three trailing characters for an ellipsis marker. Text
// already within budget is returned unchanged.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if Estimate(s) <= maxTokens {
		return s
	}

	maxChars := int(float64(maxTokens) / TokensPerChar)
	if maxChars <= 3 {
		return s[:boundary(s, maxChars)]
	}
	return s[:boundary(s, maxChars-3)] + "..."
}

// boundary backs an index off to the nearest rune start so a cut never
// leaves invalid UTF-8 at the end of the kept text.
func boundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
