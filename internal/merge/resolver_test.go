package merge_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/knowledge"
	"github.com/re-cinq/overstory/internal/merge"
	"github.com/re-cinq/overstory/internal/provider"
)

// fakeVCS implements worktree.VCS in memory for resolver tests.
type fakeVCS struct {
	conflictFiles []string
	mergeErr      error
	aborted       bool
	staged        []string
	committed     []string
	files         map[string]string // "ref:path" -> content
	checkedOut    string
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{files: map[string]string{}}
}

func (f *fakeVCS) HeadCommit(string) (string, error)             { return "deadbeef", nil }
func (f *fakeVCS) BranchExists(string) bool                      { return true }
func (f *fakeVCS) CreateBranch(string, string) error             { return nil }
func (f *fakeVCS) CreateWorktree(string, string, string) error   { return nil }
func (f *fakeVCS) RemoveWorktree(string, bool) error              { return nil }
func (f *fakeVCS) ListWorktrees() ([]string, error)              { return nil, nil }
func (f *fakeVCS) DiffNameOnly(string, string) ([]string, error) { return nil, nil }
func (f *fakeVCS) CurrentBranch() (string, error)                { return f.checkedOut, nil }
func (f *fakeVCS) Checkout(branch string) error                  { f.checkedOut = branch; return nil }
func (f *fakeVCS) Merge(string) ([]string, error)                { return f.conflictFiles, f.mergeErr }
func (f *fakeVCS) MergeAbort() error                             { f.aborted = true; return nil }
func (f *fakeVCS) UnmergedFiles() ([]string, error)              { return f.conflictFiles, nil }
func (f *fakeVCS) ReadFile(ref, path string) (string, error) {
	return f.files[ref+":"+path], nil
}
func (f *fakeVCS) StageAll() error          { return nil }
func (f *fakeVCS) StagePath(p string) error { f.staged = append(f.staged, p); return nil }
func (f *fakeVCS) Commit(msg string) error  { f.committed = append(f.committed, msg); return nil }

// fakeCLI returns a canned response regardless of the prompt.
type fakeCLI struct {
	output string
	err    error
}

func (f *fakeCLI) Invoke(context.Context, provider.InvokeRequest) (provider.InvokeResult, error) {
	return provider.InvokeResult{Output: f.output}, f.err
}

func TestResolveCleanMergeNeverCommitsOrRecords(t *testing.T) {
	vcs := newFakeVCS()
	kc := knowledge.NewInMemoryClient()
	r := merge.NewResolver(vcs, kc, nil, "main", "/repo", merge.ResolverConfig{})

	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1"}
	res, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, merge.TierCleanMerge, res.Tier)
	require.Empty(t, vcs.committed)

	patterns, _ := kc.QueryPatterns(context.Background(), "merge-conflict", nil)
	require.Empty(t, patterns)
}

func TestResolveAutoResolveTier(t *testing.T) {
	tmp := t.TempDir()
	path := tmp + "/file.txt"
	conflict := "before\n<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\nafter\n"
	require.NoError(t, writeFile(path, conflict))

	vcs := newFakeVCS()
	vcs.mergeErr = fmt.Errorf("conflict")
	vcs.conflictFiles = []string{"file.txt"}

	kc := knowledge.NewInMemoryClient()
	r := merge.NewResolver(vcs, kc, nil, "main", tmp, merge.ResolverConfig{})

	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1", FilesModified: []string{"file.txt"}}
	res, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, merge.TierAutoResolve, res.Tier)
	require.Contains(t, vcs.staged, "file.txt")
	require.Len(t, vcs.committed, 1)

	got, err := readFile(path)
	require.NoError(t, err)
	require.Equal(t, "before\ntheirs\nafter\n", got)
}

func TestResolveFallsThroughToAIResolveWhenAutoResolveCannotApply(t *testing.T) {
	tmp := t.TempDir()
	path := tmp + "/file.txt"
	// No conflict markers at all: auto-resolve tier has nothing to rewrite
	// and must decline, deferring to AI-resolve.
	require.NoError(t, writeFile(path, "already resolved content\n"))

	vcs := newFakeVCS()
	vcs.mergeErr = fmt.Errorf("conflict")
	vcs.conflictFiles = []string{"file.txt"}
	kc := knowledge.NewInMemoryClient()
	cli := &fakeCLI{output: "resolved file content\n"}

	r := merge.NewResolver(vcs, kc, cli, "main", tmp, merge.ResolverConfig{AIResolveEnabled: true})
	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1", FilesModified: []string{"file.txt"}}
	res, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, merge.TierAIResolve, res.Tier)
}

func TestResolveRejectsProseFromAIResolveAndFails(t *testing.T) {
	tmp := t.TempDir()
	path := tmp + "/file.txt"
	require.NoError(t, writeFile(path, "already resolved content\n"))

	vcs := newFakeVCS()
	vcs.mergeErr = fmt.Errorf("conflict")
	vcs.conflictFiles = []string{"file.txt"}
	kc := knowledge.NewInMemoryClient()
	cli := &fakeCLI{output: "I can't access that file right now."}

	r := merge.NewResolver(vcs, kc, cli, "main", tmp, merge.ResolverConfig{AIResolveEnabled: true})
	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1", FilesModified: []string{"file.txt"}}
	res, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, vcs.aborted)
}

func TestResolveReimagineUsesBothBranchVersions(t *testing.T) {
	tmp := t.TempDir()
	vcs := newFakeVCS()
	vcs.mergeErr = fmt.Errorf("conflict")
	vcs.conflictFiles = []string{"file.txt"}
	vcs.files["main:file.txt"] = "ours content\n"
	vcs.files["overstory/a1/t1:file.txt"] = "theirs content\n"
	kc := knowledge.NewInMemoryClient()
	cli := &fakeCLI{output: "reconciled content\n"}

	r := merge.NewResolver(vcs, kc, cli, "main", tmp, merge.ResolverConfig{ReimagineEnabled: true})
	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1", FilesModified: []string{"file.txt"}}
	res, err := r.Resolve(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, merge.TierReimagine, res.Tier)

	got, err := readFile(tmp + "/file.txt")
	require.NoError(t, err)
	require.Equal(t, "reconciled content\n", got)
}

func TestResolveSkipsTierWithHistoricalFailures(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, writeFile(tmp+"/file.txt", "already resolved\n"))

	vcs := newFakeVCS()
	vcs.mergeErr = fmt.Errorf("conflict")
	vcs.conflictFiles = []string{"file.txt"}
	kc := knowledge.NewInMemoryClient()
	ctx := context.Background()
	_ = kc.RecordPattern(ctx, knowledge.FormatLine("failed", "ai-resolve", "overstory/other/t1", "other", []string{"file.txt"}))
	_ = kc.RecordPattern(ctx, knowledge.FormatLine("failed", "ai-resolve", "overstory/other/t2", "other", []string{"file.txt"}))

	cli := &fakeCLI{output: "should never be reached"}
	r := merge.NewResolver(vcs, kc, cli, "main", tmp, merge.ResolverConfig{AIResolveEnabled: true})
	entry := merge.Entry{BranchName: "overstory/a1/t1", AgentName: "a1", FilesModified: []string{"file.txt"}}
	res, err := r.Resolve(ctx, entry)
	require.NoError(t, err)
	require.False(t, res.Success)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}
