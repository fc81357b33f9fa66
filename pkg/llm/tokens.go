package llm

import "strings"

// EstimateTokens provides a rough token estimate for text, approximately
// four characters per token for English text. Every provider's CountTokens
// uses this rather than a per-provider counting RPC so the estimate stays
// synchronous and free.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateToTokens truncates text to approximately the given token limit,
// preferring a word boundary when one falls in the last quarter of the
// budget.
func TruncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	truncated := text[:maxChars]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxChars*3/4 {
		return truncated[:lastSpace] + "..."
	}
	return truncated + "..."
}
