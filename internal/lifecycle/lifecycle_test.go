package lifecycle_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/lifecycle"
)

func TestSaveLoadCheckpointRoundTrips(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	c := lifecycle.Checkpoint{
		AgentName:        "b1",
		TaskID:           "t1",
		ProgressSummary:  "implemented the parser, tests pending",
		ModifiedFiles:    []string{"src/parser.go", "src/parser_test.go"},
		PendingWork:      "add edge-case tests",
		CurrentBranch:    "overstory/b1/t1",
		KnowledgeDomains: []string{"cli"},
		CapturedAt:       time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.SaveCheckpoint(c))

	loaded, ok, err := store.LoadCheckpoint("b1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c.AgentName, loaded.AgentName)
	require.Equal(t, c.TaskID, loaded.TaskID)
	require.Equal(t, c.ProgressSummary, loaded.ProgressSummary)
	require.Equal(t, c.ModifiedFiles, loaded.ModifiedFiles)
	require.Equal(t, c.PendingWork, loaded.PendingWork)
	require.Equal(t, c.CurrentBranch, loaded.CurrentBranch)
	require.Equal(t, c.KnowledgeDomains, loaded.KnowledgeDomains)
	require.True(t, c.CapturedAt.Equal(loaded.CapturedAt))
}

func TestLoadCheckpointMissingReturnsNotFound(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	_, ok, err := store.LoadCheckpoint("nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveCheckpointOverwritesPrior(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	require.NoError(t, store.SaveCheckpoint(lifecycle.Checkpoint{AgentName: "b1", TaskID: "t1", CapturedAt: time.Now()}))
	require.NoError(t, store.SaveCheckpoint(lifecycle.Checkpoint{AgentName: "b1", TaskID: "t2", CapturedAt: time.Now()}))

	loaded, ok, err := store.LoadCheckpoint("b1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t2", loaded.TaskID)
}

func TestClearCheckpointRemovesFileAndIsIdempotent(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	require.NoError(t, store.SaveCheckpoint(lifecycle.Checkpoint{AgentName: "b1", CapturedAt: time.Now()}))
	require.NoError(t, store.ClearCheckpoint("b1"))

	_, ok, err := store.LoadCheckpoint("b1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.ClearCheckpoint("b1"))
}

func TestRecordHandoffAppendsHistoryInOrder(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	first := lifecycle.Handoff{FromSession: "s1", AgentName: "b1", TaskID: "t1", Reason: "stalled", CreatedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
	second := lifecycle.Handoff{FromSession: "s2", AgentName: "b1", TaskID: "t1", Reason: "escalated", CreatedAt: time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, store.RecordHandoff(first))
	require.NoError(t, store.RecordHandoff(second))

	history, err := store.Handoffs("b1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "s1", history[0].FromSession)
	require.Equal(t, "s2", history[1].FromSession)
	require.False(t, history[0].IsComplete())
}

func TestCompleteHandoffMarksMostRecentIncomplete(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	require.NoError(t, store.RecordHandoff(lifecycle.Handoff{FromSession: "s1", AgentName: "b1", TaskID: "t1", CreatedAt: time.Now()}))
	require.NoError(t, store.RecordHandoff(lifecycle.Handoff{FromSession: "s2", AgentName: "b1", TaskID: "t1", CreatedAt: time.Now()}))

	completedAt := time.Now()
	require.NoError(t, store.CompleteHandoff("b1", "s3", completedAt))

	history, err := store.Handoffs("b1")
	require.NoError(t, err)
	require.False(t, history[0].IsComplete())
	require.True(t, history[1].IsComplete())
	require.Equal(t, "s3", history[1].ToSession)
}

func TestCompleteHandoffErrorsWhenNonePending(t *testing.T) {
	store := lifecycle.NewStore(t.TempDir())
	err := store.CompleteHandoff("b1", "s3", time.Now())
	require.Error(t, err)
}

func TestAgentsAreIsolatedUnderSeparateDirectories(t *testing.T) {
	dir := t.TempDir()
	store := lifecycle.NewStore(dir)
	require.NoError(t, store.SaveCheckpoint(lifecycle.Checkpoint{AgentName: "b1", TaskID: "t1", CapturedAt: time.Now()}))
	require.NoError(t, store.SaveCheckpoint(lifecycle.Checkpoint{AgentName: "b2", TaskID: "t2", CapturedAt: time.Now()}))

	b1, ok, err := store.LoadCheckpoint("b1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t1", b1.TaskID)

	b2, ok, err := store.LoadCheckpoint("b2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t2", b2.TaskID)

	require.FileExists(t, filepath.Join(dir, "agents", "b1", "checkpoint.json"))
	require.FileExists(t, filepath.Join(dir, "agents", "b2", "checkpoint.json"))
}
