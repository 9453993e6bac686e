package mail

import "strings"

// Recipient is the minimal session-store view needed to resolve a group
// address: its agent name and capability.
type Recipient struct {
	AgentName  string
	Capability string
}

// knownCapabilities are the recognized capability names (spec.md §3),
// used to resolve the `<capability>s` plural group form.
var knownCapabilities = []string{"lead", "builder", "scout", "reviewer", "merger", "coordinator", "monitor"}

// IsGroupAddress reports whether addr matches one of the recognized group
// forms (spec.md §4.3): `group:<name>`, `all`, `builders`, `scouts`,
// `reviewers`, or any capability-name prefix `<capability>s`.
//
// Resolution precedence (spec.md §9's open question on grammar ambiguity,
// decided here): an address that exactly matches a live session's agent
// name is NOT a group, even if it also happens to match a plural
// capability form — exact identity wins over group-pattern matching.
func IsGroupAddress(addr string, activeNames map[string]bool) bool {
	if activeNames[addr] {
		return false
	}
	if addr == "all" {
		return true
	}
	if strings.HasPrefix(addr, "group:") {
		return true
	}
	if isCapabilityPlural(addr) {
		return true
	}
	return false
}

func isCapabilityPlural(addr string) bool {
	if !strings.HasSuffix(addr, "s") {
		return false
	}
	singular := strings.TrimSuffix(addr, "s")
	for _, c := range knownCapabilities {
		if c == singular {
			return true
		}
	}
	return false
}

// ResolveGroup expands addr against the active recipient set, excluding
// sender, and returns the matching agent names. Returns an empty slice
// (never an error) when the group resolves to zero recipients
// (spec.md §8 boundary behavior).
func ResolveGroup(addr string, sender string, active []Recipient) []string {
	var out []string
	switch {
	case addr == "all":
		for _, r := range active {
			if r.AgentName != sender {
				out = append(out, r.AgentName)
			}
		}
	case strings.HasPrefix(addr, "group:"):
		name := strings.TrimPrefix(addr, "group:")
		for _, r := range active {
			if r.AgentName != sender && r.Capability == name {
				out = append(out, r.AgentName)
			}
		}
	case isCapabilityPlural(addr):
		singular := strings.TrimSuffix(addr, "s")
		for _, r := range active {
			if r.AgentName != sender && r.Capability == singular {
				out = append(out, r.AgentName)
			}
		}
	}
	return out
}
