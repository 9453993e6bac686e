package hooks_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/hooks"
)

func TestHealGitignoreAddsMissingEntriesOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.db\ncustom-entry/\n"), 0o644))

	require.NoError(t, hooks.HealGitignore(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "custom-entry/")
	require.Contains(t, content, "pending-nudges/")
	require.Contains(t, content, "current-run")
}

func TestHealGitignoreIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, hooks.HealGitignore(dir))
	first, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)

	require.NoError(t, hooks.HealGitignore(dir))
	second, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPrimeOrchestratorCapturesSessionBranch(t *testing.T) {
	dir := t.TempDir()
	out, err := hooks.Prime(dir, true, "overstory/orchestrator-session", hooks.PrimeContext{
		ProjectName:     "demo",
		CanonicalBranch: "main",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Session branch: overstory/orchestrator-session")

	data, err := os.ReadFile(filepath.Join(dir, "session-branch.txt"))
	require.NoError(t, err)
	require.Equal(t, "overstory/orchestrator-session\n", string(data))
}

func TestPrimeAgentOmitsOrchestratorOnlyFields(t *testing.T) {
	dir := t.TempDir()
	out, err := hooks.Prime(dir, false, "", hooks.PrimeContext{
		ProjectName:     "demo",
		CanonicalBranch: "main",
		IdentityFile:    "builder agent b1",
		ActivationHint:  "bound to task t1",
	})
	require.NoError(t, err)
	require.Contains(t, out, "builder agent b1")
	require.Contains(t, out, "bound to task t1")
	require.NotContains(t, out, "Session branch:")
}

func TestSpecWriteIncludesAttributionHeader(t *testing.T) {
	dir := t.TempDir()
	path, err := hooks.SpecWrite(dir, "t1", "Implement the thing.", "lead1")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "<!-- written by lead1 -->")
	require.Contains(t, string(data), "Implement the thing.")
}

func TestCheckDebouncerSkipsWithinWindow(t *testing.T) {
	dir := t.TempDir()
	d := hooks.NewCheckDebouncer(filepath.Join(dir, "check-state.json"), time.Minute)
	now := time.Now()

	skip, err := d.ShouldSkip("a1", now)
	require.NoError(t, err)
	require.False(t, skip)

	skip, err = d.ShouldSkip("a1", now.Add(10*time.Second))
	require.NoError(t, err)
	require.True(t, skip)

	skip, err = d.ShouldSkip("a1", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, skip)
}

func TestCheckDebouncerZeroWindowNeverSkips(t *testing.T) {
	dir := t.TempDir()
	d := hooks.NewCheckDebouncer(filepath.Join(dir, "check-state.json"), 0)
	now := time.Now()
	skip, err := d.ShouldSkip("a1", now)
	require.NoError(t, err)
	require.False(t, skip)
	skip, err = d.ShouldSkip("a1", now)
	require.NoError(t, err)
	require.False(t, skip)
}
