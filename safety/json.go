package safety

import "strings"

// StripCodeFence removes an optional markdown code fence wrapping s.
//
// Accepted grammar: optional leading "```" with an optional language tag up
// to the end of the first line, then the body, then an optional trailing
// "```". Input without a fence is returned trimmed and otherwise untouched.
// Models frequently wrap JSON answers this way even when told not to, so
// the classifier runs every response through here before parsing.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = t[len("```"):]

	// Drop the language tag: everything up to and including the first
	// newline. A fence with no newline has no body beyond the tag.
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return ""
	}

	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
