package worktree

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Manager creates and tears down the isolated agent execution environments
// the spawn coordinator needs (spec.md §4.6): a git worktree plus the
// branch it lives on.
type Manager struct {
	vcs     VCS
	baseDir string // {project}/.overstory/worktrees
}

// NewManager returns a Manager rooted at baseDir, using vcs for git
// operations.
func NewManager(vcs VCS, baseDir string) *Manager {
	return &Manager{vcs: vcs, baseDir: baseDir}
}

// Path returns the worktree path for agentName.
func (m *Manager) Path(agentName string) string {
	return filepath.Join(m.baseDir, agentName)
}

// Create creates a worktree for agentName at branch, based on base
// (spec.md §4.7 step 8: `<worktreesBase>/<agentName>` on branch
// `overstory/<agentName>/<taskId>` based on the current canonical branch).
func (m *Manager) Create(agentName, branch, base string) (string, error) {
	path := m.Path(agentName)
	if err := m.vcs.CreateWorktree(path, branch, base); err != nil {
		return "", fmt.Errorf("creating worktree for %s: %w", agentName, err)
	}
	return path, nil
}

// Remove tears down the worktree for agentName, best-effort with force.
func (m *Manager) Remove(agentName string) error {
	return m.vcs.RemoveWorktree(m.Path(agentName), true)
}

// BranchName computes the convention branch name for an agent/task pair
// (spec.md §3: `overstory/{agentName}/{taskId}`).
func BranchName(agentName, taskID string) string {
	return fmt.Sprintf("overstory/%s/%s", agentName, taskID)
}

// TmuxSessionName computes the convention terminal session name
// (spec.md §6: `overstory-{projectName}-{agentName}`).
func TmuxSessionName(projectName, agentName string) string {
	return fmt.Sprintf("overstory-%s-%s", projectName, agentName)
}

// ParseBranchName splits a branch name per the strict convention and
// reports whether it matched (spec.md §6 "Branch-naming convention").
func ParseBranchName(branch string) (agentName, taskID string, ok bool) {
	const prefix = "overstory/"
	if len(branch) <= len(prefix) || branch[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := branch[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
