package utils

// CountTokens estimates how many tokens a prompt will spend, using the
// common 4-characters-per-token approximation. Close enough for budget
// guidance; exact counts belong to the provider.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenBreakdown estimates tokens per labeled prompt section so a plan can
// show where the budget goes.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
