package spawn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/session"
)

// dangerGuards are terminal-command deny patterns every agent gets,
// regardless of configured permissions (spec.md §4.7 step 9): never push
// to the canonical branches, never hard-reset, never create a branch
// outside the agent's own naming convention.
func dangerGuards(agentName string) []string {
	return []string{
		"Bash(git push * main)",
		"Bash(git push * master)",
		"Bash(git reset --hard*)",
		"Bash(git checkout -b*)",
		fmt.Sprintf("Bash(git branch * !overstory/%s/*)", agentName),
	}
}

// readOnlyDeny is added for capabilities that must not modify files
// (spec.md §4.7 step 9: scout and reviewer).
var readOnlyDeny = []string{"Write", "Edit", "NotebookEdit"}

// hookSettings mirrors the Claude Code .claude/settings.json permissions
// block shape, substituted per-agent.
type hookSettings struct {
	Permissions struct {
		Allow []string `json:"allow"`
		Deny  []string `json:"deny"`
	} `json:"permissions"`
}

// writeHookSettings writes the agent-specific hook settings file into the
// worktree (spec.md §4.7 step 9).
func writeHookSettings(worktreePath, agentName string, capability session.Capability, perms *config.Permissions) error {
	var settings hookSettings
	if perms != nil {
		settings.Permissions.Allow = append(settings.Permissions.Allow, perms.Allow...)
		settings.Permissions.Deny = append(settings.Permissions.Deny, perms.Deny...)
	}
	settings.Permissions.Deny = append(settings.Permissions.Deny, dangerGuards(agentName)...)
	if capability == session.CapabilityScout || capability == session.CapabilityReviewer {
		settings.Permissions.Deny = append(settings.Permissions.Deny, readOnlyDeny...)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling hook settings: %w", err)
	}

	dir := filepath.Join(worktreePath, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .claude directory: %w", err)
	}
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing hook settings: %w", err)
	}
	return nil
}
