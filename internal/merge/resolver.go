package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/re-cinq/overstory/internal/errs"
	"github.com/re-cinq/overstory/internal/knowledge"
	"github.com/re-cinq/overstory/internal/provider"
	"github.com/re-cinq/overstory/internal/worktree"
)

// conflictBlockRe matches a single git conflict block and captures the
// incoming ("theirs") side, used by the auto-resolve tier (spec.md §4.5
// tier 2: "keep incoming changes").
var conflictBlockRe = regexp.MustCompile(`(?s)<{7}[^\n]*\n.*?\n={7}\n(.*?)\n>{7}[^\n]*`)

// ResolverConfig toggles the optional tiers, mirroring config.Merge
// (spec.md §6 "merge.aiResolveEnabled" / "merge.reimagineEnabled").
type ResolverConfig struct {
	AIResolveEnabled bool
	ReimagineEnabled bool
	AICommand        string
	AIArgs           []string
}

// Resolver runs the four-tier merge conflict resolution sequence against a
// single queue Entry (spec.md §4.5), generalizing the teacher's
// rebaseWorktree/commitChanges/invokeAgent machinery from "rebase and
// regenerate" to "merge and escalate".
type Resolver struct {
	VCS             worktree.VCS
	Knowledge       knowledge.Client
	CLI             provider.CLI
	CanonicalBranch string
	RepoRoot        string
	Config          ResolverConfig
}

// NewResolver constructs a Resolver from its collaborators.
func NewResolver(vcs worktree.VCS, kc knowledge.Client, cli provider.CLI, canonicalBranch, repoRoot string, cfg ResolverConfig) *Resolver {
	return &Resolver{
		VCS: vcs, Knowledge: kc, CLI: cli,
		CanonicalBranch: canonicalBranch, RepoRoot: repoRoot, Config: cfg,
	}
}

// Resolve attempts to merge entry.BranchName into the canonical branch,
// escalating through tiers on conflict (spec.md §4.5). It always leaves
// the repository in a clean state: a successful merge is committed, and a
// failed attempt is rolled back with `git merge --abort` before returning.
func (r *Resolver) Resolve(ctx context.Context, entry Entry) (Result, error) {
	if err := r.VCS.Checkout(r.CanonicalBranch); err != nil {
		return Result{}, errs.Merge("checking out canonical branch", entry.BranchName, nil, err)
	}

	conflictFiles, mergeErr := r.VCS.Merge(entry.BranchName)
	if mergeErr == nil {
		return r.succeed(ctx, entry, TierCleanMerge)
	}

	advice := gatherAdvice(ctx, r.Knowledge, entry.FilesModified)

	// lastTier tracks the last tier actually attempted, not merely
	// considered, so a failure result always carries a valid enum member
	// (spec.md §4.5 Termination: "a failure result whose tier is the last
	// one attempted"; the CHECK constraint on merge_queue.resolved_tier
	// rejects anything else).
	lastTier := TierAutoResolve

	if !advice.SkipTiers[TierAutoResolve] {
		if ok, err := r.tryAutoResolve(conflictFiles); err == nil && ok {
			return r.succeed(ctx, entry, TierAutoResolve)
		}
	}

	if r.Config.AIResolveEnabled && !advice.SkipTiers[TierAIResolve] {
		lastTier = TierAIResolve
		if ok, err := r.tryAIResolve(ctx, conflictFiles); err == nil && ok {
			return r.succeed(ctx, entry, TierAIResolve)
		}
	}

	// Tier 4 requires a clean worktree to read both file versions via git
	// show, so the in-progress tier 2/3 merge is abandoned first.
	_ = r.VCS.MergeAbort()

	if r.Config.ReimagineEnabled && !advice.SkipTiers[TierReimagine] {
		lastTier = TierReimagine
		if ok, err := r.tryReimagine(ctx, entry, entry.FilesModified); err == nil && ok {
			return r.succeed(ctx, entry, TierReimagine)
		}
		_ = r.VCS.MergeAbort()
	}

	slog.Warn("merge: all tiers exhausted", "branch", entry.BranchName, "lastTier", lastTier, "error", mergeErr)
	recordOutcome(ctx, r.Knowledge, "failed", lastTier, entry)
	return Result{
		Entry:         entry,
		Success:       false,
		Tier:          lastTier,
		ConflictFiles: conflictFiles,
		ErrorMessage:  mergeErr.Error(),
	}, nil
}

// succeed stages and commits the resolution and records the outcome.
// Pattern recording is skipped for a clean merge (spec.md §4.5 "Pattern
// recording": nothing to learn from a merge that never conflicted).
func (r *Resolver) succeed(ctx context.Context, entry Entry, tier Tier) (Result, error) {
	if tier != TierCleanMerge {
		if err := r.VCS.StageAll(); err != nil {
			return Result{}, errs.Merge("staging resolution", entry.BranchName, nil, err)
		}
		msg := fmt.Sprintf("Merge %s into %s (tier: %s)", entry.BranchName, r.CanonicalBranch, tier)
		if err := r.VCS.Commit(msg); err != nil {
			return Result{}, errs.Merge("committing resolution", entry.BranchName, nil, err)
		}
		recordOutcome(ctx, r.Knowledge, "resolved", tier, entry)
	}
	slog.Info("merge: resolved", "branch", entry.BranchName, "tier", tier)
	return Result{Entry: entry, Success: true, Tier: tier}, nil
}

// tryAutoResolve rewrites every conflicted file by keeping the incoming
// ("theirs") side of each conflict block (spec.md §4.5 tier 2). It bails
// out, leaving the merge in progress for the next tier, if a file has no
// conflict markers at all (a delete/modify or binary conflict, which this
// tier does not understand) or if any marker survives rewriting.
func (r *Resolver) tryAutoResolve(conflictFiles []string) (bool, error) {
	if len(conflictFiles) == 0 {
		return false, nil
	}
	for _, rel := range conflictFiles {
		path := filepath.Join(r.RepoRoot, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		if !conflictBlockRe.Match(data) {
			return false, nil
		}
		resolved := conflictBlockRe.ReplaceAll(data, []byte("$1"))
		if conflictBlockRe.Match(resolved) || strings.Contains(string(resolved), "<<<<<<<") {
			return false, nil
		}
		if err := os.WriteFile(path, resolved, 0o644); err != nil {
			return false, err
		}
		if err := r.VCS.StagePath(rel); err != nil {
			return false, err
		}
	}
	return true, nil
}

// tryAIResolve asks the configured LLM CLI to resolve each conflicted file
// in place, rejecting any response the prose heuristic flags as
// conversational rather than raw content (spec.md §4.5.a, tier 3).
func (r *Resolver) tryAIResolve(ctx context.Context, conflictFiles []string) (bool, error) {
	if len(conflictFiles) == 0 || r.CLI == nil {
		return false, nil
	}
	for _, rel := range conflictFiles {
		path := filepath.Join(r.RepoRoot, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		prompt := fmt.Sprintf(
			"Resolve the git merge conflict markers in this file. Reply with ONLY the fully resolved file content, no explanation, no markdown fences.\n\n%s",
			string(data),
		)
		result, err := r.CLI.Invoke(ctx, provider.InvokeRequest{
			Command: r.Config.AICommand,
			Args:    r.Config.AIArgs,
			Dir:     r.RepoRoot,
			Prompt:  prompt,
		})
		if err != nil {
			return false, nil
		}
		if isProse(result.Output) {
			return false, nil
		}
		if err := os.WriteFile(path, []byte(result.Output), 0o644); err != nil {
			return false, err
		}
		if err := r.VCS.StagePath(rel); err != nil {
			return false, err
		}
	}
	return true, nil
}

// tryReimagine asks the LLM CLI to regenerate every file the entry
// modified from scratch given both full versions, rather than patching
// conflict markers in just the subset that conflicted (spec.md §4.5, tier
// 4: "for each file in entry.filesModified, fetch both the canonical and
// branch versions" — last resort before failure). It must run after
// MergeAbort so both ReadFile calls resolve against the pre-merge history.
func (r *Resolver) tryReimagine(ctx context.Context, entry Entry, modifiedFiles []string) (bool, error) {
	if len(modifiedFiles) == 0 || r.CLI == nil {
		return false, nil
	}
	for _, rel := range modifiedFiles {
		ours, err := r.VCS.ReadFile(r.CanonicalBranch, rel)
		if err != nil {
			return false, nil
		}
		theirs, err := r.VCS.ReadFile(entry.BranchName, rel)
		if err != nil {
			return false, nil
		}
		prompt := fmt.Sprintf(
			"Two branches both modified %s and conflict. Produce the single best merged version "+
				"reconciling both sets of changes. Reply with ONLY the final file content, no explanation, no markdown fences.\n\n"+
				"=== Version from %s ===\n%s\n\n=== Version from %s ===\n%s",
			rel, r.CanonicalBranch, ours, entry.BranchName, theirs,
		)
		result, err := r.CLI.Invoke(ctx, provider.InvokeRequest{
			Command: r.Config.AICommand,
			Args:    r.Config.AIArgs,
			Dir:     r.RepoRoot,
			Prompt:  prompt,
		})
		if err != nil || isProse(result.Output) {
			return false, nil
		}
		path := filepath.Join(r.RepoRoot, rel)
		if err := os.WriteFile(path, []byte(result.Output), 0o644); err != nil {
			return false, err
		}
		if err := r.VCS.StagePath(rel); err != nil {
			return false, err
		}
	}
	return true, nil
}
