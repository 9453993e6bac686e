// Package worktree wraps git worktree lifecycle and terminal multiplexer
// session management for spawned agents (spec.md §4.6). The VCS wrapper
// generalizes the teacher's internal/git.Repo (retry-on-transient-lock,
// the same git subcommand set) from a single-repo "concern" tool into a
// worktree-per-agent primitive; the Multiplexer wrapper is grounded on the
// gastown tmux.Tmux contract referenced from
// other_examples/...refinery-manager.go (NewSession/SetEnvironment/
// SendKeys/KillSession).
package worktree

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/re-cinq/overstory/internal/errs"
)

// Retry constants for transient git errors, carried unchanged from the
// teacher's internal/git.Repo.
const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts  = 6
	retryMultiplier   = 2
)

var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
}

func isTransient(errMsg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

// VCS is the worktree/branch contract the spawn coordinator and merge
// resolver depend on (spec.md §4.6, §6).
type VCS interface {
	HeadCommit(branch string) (string, error)
	BranchExists(branch string) bool
	CreateBranch(name, from string) error
	CreateWorktree(path, branch, base string) error
	RemoveWorktree(path string, force bool) error
	ListWorktrees() ([]string, error)
	DiffNameOnly(from, to string) ([]string, error)
	CurrentBranch() (string, error)
	Checkout(branch string) error
	Merge(branch string) (conflictFiles []string, err error)
	MergeAbort() error
	UnmergedFiles() ([]string, error)
	ReadFile(ref, path string) (string, error)
	StageAll() error
	StagePath(path string) error
	Commit(message string) error
}

// sleepFunc is overridable in tests to avoid real delays.
var sleepFunc = time.Sleep

// GitVCS is the real adapter, shelling out to the `git` binary in repoDir.
type GitVCS struct {
	repoDir string
}

// NewGitVCS returns a VCS rooted at repoDir (the canonical checkout, not a
// worktree — worktree operations always run from there).
func NewGitVCS(repoDir string) *GitVCS {
	return &GitVCS{repoDir: repoDir}
}

func (g *GitVCS) run(dir string, args ...string) (string, error) {
	if dir == "" {
		dir = g.repoDir
	}
	delay := retryInitialDelay
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		msg := strings.TrimSpace(string(out))
		if !isTransient(msg) || attempt == retryMaxAttempts-1 {
			return "", errs.Worktree(fmt.Sprintf("git %s: %s", strings.Join(args, " "), msg), err)
		}
		sleepFunc(delay)
		delay *= retryMultiplier
	}
	return "", nil
}

func (g *GitVCS) HeadCommit(branch string) (string, error) {
	return g.run("", "rev-parse", branch)
}

func (g *GitVCS) BranchExists(branch string) bool {
	_, err := g.run("", "rev-parse", "--verify", branch)
	return err == nil
}

func (g *GitVCS) CreateBranch(name, from string) error {
	_, err := g.run("", "branch", name, from)
	return err
}

func (g *GitVCS) CreateWorktree(path, branch, base string) error {
	if !g.BranchExists(branch) {
		if err := g.CreateBranch(branch, base); err != nil {
			return err
		}
	}
	_, err := g.run("", "worktree", "add", path, branch)
	return err
}

func (g *GitVCS) RemoveWorktree(path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := g.run("", args...)
	return err
}

func (g *GitVCS) ListWorktrees() ([]string, error) {
	out, err := g.run("", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}

func (g *GitVCS) DiffNameOnly(from, to string) ([]string, error) {
	out, err := g.run("", "diff", "--name-only", from+"..."+to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *GitVCS) CurrentBranch() (string, error) {
	return g.run("", "rev-parse", "--abbrev-ref", "HEAD")
}

// Checkout checks out branch, but skips the operation (and the git call
// entirely) when already on it — re-checking-out the canonical branch
// collides with existing worktrees checked out on that same branch
// (spec.md §9 "Checkout-skip optimization").
func (g *GitVCS) Checkout(branch string) error {
	current, err := g.CurrentBranch()
	if err == nil && current == branch {
		return nil
	}
	_, err = g.run("", "checkout", branch)
	return err
}

// Merge runs `git merge --no-edit <branch>`. On conflict, returns the list
// of unmerged file paths and a non-nil error.
func (g *GitVCS) Merge(branch string) ([]string, error) {
	_, err := g.run("", "merge", "--no-edit", branch)
	if err == nil {
		return nil, nil
	}
	files, ferr := g.UnmergedFiles()
	if ferr != nil {
		return nil, err
	}
	return files, err
}

func (g *GitVCS) MergeAbort() error {
	_, err := g.run("", "merge", "--abort")
	return err
}

func (g *GitVCS) UnmergedFiles() ([]string, error) {
	out, err := g.run("", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *GitVCS) ReadFile(ref, path string) (string, error) {
	return g.run("", "show", ref+":"+path)
}

func (g *GitVCS) StageAll() error {
	_, err := g.run("", "add", "-A")
	return err
}

func (g *GitVCS) StagePath(path string) error {
	_, err := g.run("", "add", path)
	return err
}

// Commit creates a commit, skipping pre-commit hooks: no agent is
// available after the fact to fix a hook failure (teacher's
// internal/git.Repo.Commit rationale, carried unchanged).
func (g *GitVCS) Commit(message string) error {
	_, err := g.run("", "commit", "--no-verify", "-m", message)
	return err
}
