// Package tokens approximates token usage from whitespace-delimited words.
//
// The numbers are not produced by a real tokenizer. Prompt tokens are the
// word count of every message; completion tokens are a quarter of the
// completion's word count, rounded down. Downstream consumers rely on these
// exact values, so the formulas must not be tuned.
package tokens

import "strings"

// WordCount returns the number of whitespace-delimited tokens in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// PromptTokens sums WordCount over every content string.
func PromptTokens(contents ...string) int {
	n := 0
	for _, c := range contents {
		n += WordCount(c)
	}
	return n
}

// CompletionTokens returns floor(WordCount(text) / 4).
// TODO: replace with a real tokenizer once backends report their own usage.
func CompletionTokens(text string) int {
	return WordCount(text) / 4
}
