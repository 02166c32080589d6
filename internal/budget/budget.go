// Package budget estimates token counts for chat prompts and fits chapter
// previews into a context budget. Backends use different tokenizers, so the
// estimate is a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models with room left for the response.
	DefaultMaxContextTokens = 6000

	// perMessageOverhead approximates the framing tokens most APIs add per message.
	perMessageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitPages drops trailing pages until fixed plus the remaining pages fit in
// maxTokens. The first page is always kept so the model sees something of
// the chapter; callers should warn separately when even that overflows.
func FitPages(fixed []*schema.Message, pages []string, maxTokens int) []string {
	if len(pages) == 0 {
		return pages
	}
	used := EstimateMessages(fixed)
	for i, p := range pages {
		used += Estimate(p)
		if used > maxTokens {
			return pages[:max(i, 1)]
		}
	}
	return pages
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
