package spawn

import (
	"sort"
	"strings"

	"github.com/re-cinq/overstory/internal/config"
)

// inferDomains maps the request's spec path to knowledge-store priming
// domains by path prefix (spec.md §4.7 step 7), falling back to the
// configured default domains when the path matches no prefix. A Request
// carries no modified-file list, so the spec path is the only path
// classified.
func inferDomains(req Request, cfg *config.Config) []string {
	domains := domainsForFiles([]string{req.SpecPath})
	if len(domains) == 0 && cfg != nil {
		domains = append(domains, cfg.Mulch.Domains...)
	}
	return domains
}

// domainsForFiles maps a set of repo-relative paths to knowledge-store
// domains (spec.md §4.7 step 7):
//
//	src/commands/ -> cli
//	src/mail/     -> messaging
//	src/agents/   -> agents
//	src/merge/, src/worktree/ -> architecture
//	any other src/ -> typescript-equivalent
//	anything else -> ignored
func domainsForFiles(files []string) []string {
	seen := map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "src/commands/"):
			seen["cli"] = true
		case strings.HasPrefix(f, "src/mail/"):
			seen["messaging"] = true
		case strings.HasPrefix(f, "src/agents/"):
			seen["agents"] = true
		case strings.HasPrefix(f, "src/merge/"), strings.HasPrefix(f, "src/worktree/"):
			seen["architecture"] = true
		case strings.HasPrefix(f, "src/"):
			seen["typescript-equivalent"] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
