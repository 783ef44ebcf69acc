package agent

import "strings"

// CompletionPolicy decides from an assistant reply whether the task is done.
type CompletionPolicy func(reply string) bool

var completionKeywords = []string{"completed", "finished", "done", "accomplished"}

// KeywordCompletion matches any completion keyword as a case-insensitive
// substring, so "undone" also counts.
func KeywordCompletion(reply string) bool {
	return containsAny(strings.ToLower(reply), completionKeywords)
}

// KeywordsCompletion builds a substring policy over custom keywords.
func KeywordsCompletion(keywords ...string) CompletionPolicy {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return func(reply string) bool {
		return containsAny(strings.ToLower(reply), lowered)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
