// Package knowledge defines the contract for the external knowledge store
// ("Mulch" in config) consulted by the merge resolver's historical-advice
// step and written by its pattern-recording step. Only the contract and an
// in-memory reference implementation ship here — spec.md §1 names the
// knowledge store as an external collaborator outside this module's scope.
package knowledge

import "context"

// Pattern is a single recorded observation, stored as a free-text line in
// the sentence format spec.md §4.5 parses:
// "Merge conflict {resolved|failed} at tier <tier>. Branch: <b>. Agent: <a>. Conflicting files: <csv>."
type Pattern struct {
	Tag   string
	Line  string
	Files []string
}

// Client is the contract an implementer plugs a real backend into.
type Client interface {
	// QueryPatterns returns recorded patterns tagged tag whose file set
	// overlaps files. Implementations that cannot reach their backend
	// should return an empty slice, not an error — per spec.md §4.5,
	// knowledge-store query failures are never fatal to a merge.
	QueryPatterns(ctx context.Context, tag string, files []string) ([]Pattern, error)

	// RecordPattern appends a new pattern line. Fire-and-forget by
	// convention: callers swallow the returned error (spec.md §7).
	RecordPattern(ctx context.Context, line string) error
}

// InMemoryClient is a reference Client backed by a slice, useful for tests
// and for operation without a configured external knowledge store.
type InMemoryClient struct {
	patterns []Pattern
}

// NewInMemoryClient returns an empty in-memory knowledge client.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{}
}

func (c *InMemoryClient) QueryPatterns(_ context.Context, tag string, files []string) ([]Pattern, error) {
	want := make(map[string]bool, len(files))
	for _, f := range files {
		want[f] = true
	}
	var out []Pattern
	for _, p := range c.patterns {
		if p.Tag != tag {
			continue
		}
		if overlaps(p.Files, want) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *InMemoryClient) RecordPattern(_ context.Context, line string) error {
	c.patterns = append(c.patterns, Pattern{Tag: "merge-conflict", Line: line, Files: extractFiles(line)})
	return nil
}

func overlaps(files []string, want map[string]bool) bool {
	for _, f := range files {
		if want[f] {
			return true
		}
	}
	return false
}
