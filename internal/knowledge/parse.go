package knowledge

import (
	"fmt"
	"regexp"
	"strings"
)

// sentenceRe parses the fixed sentence format spec.md §4.5 specifies:
// "Merge conflict {resolved|failed} at tier <tier>. Branch: <b>. Agent: <a>. Conflicting files: <csv>."
var sentenceRe = regexp.MustCompile(
	`^Merge conflict (resolved|failed) at tier ([\w-]+)\. Branch: (\S+)\. Agent: (\S+)\. Conflicting files: (.*)\.$`,
)

// ParsedPattern is the structured decoding of a knowledge-store pattern
// line (spec.md §4.5).
type ParsedPattern struct {
	Outcome string // "resolved" or "failed"
	Tier    string
	Branch  string
	Agent   string
	Files   []string
}

// ParseLine decodes line into a ParsedPattern, or reports ok=false if it
// does not match the expected sentence format.
func ParseLine(line string) (ParsedPattern, bool) {
	m := sentenceRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return ParsedPattern{}, false
	}
	return ParsedPattern{
		Outcome: m[1],
		Tier:    m[2],
		Branch:  m[3],
		Agent:   m[4],
		Files:   extractFiles(line),
	}, true
}

// FormatLine renders a pattern back into the sentence format, used when
// recording a new observation (spec.md §4.5 "Pattern recording").
func FormatLine(outcome, tier, branch, agent string, files []string) string {
	return fmt.Sprintf("Merge conflict %s at tier %s. Branch: %s. Agent: %s. Conflicting files: %s.",
		outcome, tier, branch, agent, strings.Join(files, ", "))
}

// extractFiles pulls the comma-separated file list out of a sentence-
// format line, regardless of whether the full sentence structure matches.
func extractFiles(line string) []string {
	const marker = "Conflicting files: "
	idx := strings.Index(line, marker)
	if idx < 0 {
		return nil
	}
	rest := strings.TrimSuffix(strings.TrimSpace(line[idx+len(marker):]), ".")
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
