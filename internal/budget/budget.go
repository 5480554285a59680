// Package budget provides token estimation and token-bounded truncation for
// the reply pipeline. Because the pipeline supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 ASCII characters, 1 token ≈ 2 runes for non-ASCII
// scripts (Thai, CJK), which tokenize far denser than English. This
// deliberately over-counts slightly to leave headroom for model-specific
// overhead.
package budget

import "strings"

const (
	// asciiCharsPerToken is the character-to-token ratio for ASCII text.
	asciiCharsPerToken = 4

	// wideRunesPerToken is the rune-to-token ratio for non-ASCII scripts.
	// Thai and CJK text average roughly 2 runes per BPE token.
	wideRunesPerToken = 2

	// DefaultAnswerBudget is the default total input budget in tokens for one
	// answer-generation call. Conservative enough for 8k-context models while
	// leaving room for the response.
	DefaultAnswerBudget = 6000

	// DefaultHeadroom is the portion of the answer budget reserved for the
	// query, instructions, and response; the context assembler fills only the
	// remainder with retrieved text.
	DefaultHeadroom = 1500
)

// Estimate returns a rough token count for s using the character heuristic.
// Non-empty strings always estimate to at least 1 token.
func Estimate(s string) int {
	ascii := 0
	wide := 0
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			wide++
		}
	}

	n := ascii/asciiCharsPerToken + wide/wideRunesPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Truncate returns a prefix of s estimated at no more than maxTokens tokens,
// cutting at a word boundary where one exists near the cut point. Returns s
// unchanged when it already fits, and "" when maxTokens is not positive.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if Estimate(s) <= maxTokens {
		return s
	}

	// Walk runes, accumulating the same estimate as Estimate, and stop just
	// before the budget is exceeded.
	budget := maxTokens * asciiCharsPerToken // ASCII-equivalent character budget
	used := 0
	cut := len(s)
	for i, r := range s {
		if r < 128 {
			used++
		} else {
			used += asciiCharsPerToken / wideRunesPerToken
		}
		if used > budget {
			cut = i
			break
		}
	}

	prefix := s[:cut]

	// Prefer cutting at the last space when it is reasonably close, so words
	// are not split mid-way. Thai text has no spaces; the rune cut stands.
	if idx := strings.LastIndexByte(prefix, ' '); idx > 0 && cut-idx < 48 {
		prefix = prefix[:idx]
	}

	return strings.TrimRight(prefix, " ")
}
