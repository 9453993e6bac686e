package merge

import "strings"

// conversationalLeaders are prefixes that mark an LLM response as prose
// rather than raw file content (spec.md §4.5.a).
var conversationalLeaders = []string{
	"I ", "I'm", "Here ", "The conflict", "Let me", "Sure", "Unfortunately",
	"Sorry", "To resolve", "Looking at", "Based on",
}

// refusalPhrases indicate the model declined to answer.
var refusalPhrases = []string{
	"I need permission", "I cannot", "I don't have",
}

// isProse reports whether output should be rejected as conversational
// rather than accepted as raw resolved file content (spec.md §4.5.a).
func isProse(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return true
	}
	for _, leader := range conversationalLeaders {
		if strings.HasPrefix(trimmed, leader) {
			return true
		}
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return true
		}
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(trimmed, phrase) {
			return true
		}
	}
	return false
}
