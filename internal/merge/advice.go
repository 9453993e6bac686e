package merge

import (
	"context"

	"github.com/re-cinq/overstory/internal/knowledge"
)

// Advice is the result of consulting the knowledge store for patterns
// relevant to the current entry's files (spec.md §4.5 "Historical advice").
type Advice struct {
	SkipTiers              map[Tier]bool
	PastResolutions        []string
	PredictedConflictFiles []string
}

// tierFailureThreshold is the "≥2 failures, zero successes" heuristic
// spec.md §9 flags as an open question; kept as a tunable constant rather
// than baked into the query since it is explicitly non-normative.
const tierFailureThreshold = 2

// gatherAdvice queries client for merge-conflict patterns overlapping
// files and derives skip/prediction signals. Query failures degrade to
// empty advice — never fatal to the merge (spec.md §4.5).
func gatherAdvice(ctx context.Context, client knowledge.Client, files []string) Advice {
	advice := Advice{SkipTiers: map[Tier]bool{}}
	if client == nil {
		return advice
	}

	patterns, err := client.QueryPatterns(ctx, "merge-conflict", files)
	if err != nil || len(patterns) == 0 {
		return advice
	}

	type tally struct{ failures, successes int }
	tallies := map[Tier]*tally{}
	seenFiles := map[string]bool{}

	for _, p := range patterns {
		parsed, ok := knowledge.ParseLine(p.Line)
		if !ok {
			continue
		}
		tier := Tier(parsed.Tier)
		if tallies[tier] == nil {
			tallies[tier] = &tally{}
		}
		if parsed.Outcome == "resolved" {
			tallies[tier].successes++
			advice.PastResolutions = append(advice.PastResolutions, parsed.Branch+": "+parsed.Tier)
		} else {
			tallies[tier].failures++
		}
		for _, f := range parsed.Files {
			seenFiles[f] = true
		}
	}

	for tier, t := range tallies {
		if t.failures >= tierFailureThreshold && t.successes == 0 {
			advice.SkipTiers[tier] = true
		}
	}
	for f := range seenFiles {
		advice.PredictedConflictFiles = append(advice.PredictedConflictFiles, f)
	}
	return advice
}

// recordOutcome records a pattern line for the resolver's attempt at
// tier, fire-and-forget (spec.md §4.5 "Pattern recording", §7 propagation
// policy for non-essential side effects).
func recordOutcome(ctx context.Context, client knowledge.Client, outcome string, tier Tier, entry Entry) {
	if client == nil {
		return
	}
	line := knowledge.FormatLine(outcome, string(tier), entry.BranchName, entry.AgentName, entry.FilesModified)
	_ = client.RecordPattern(ctx, line)
}
