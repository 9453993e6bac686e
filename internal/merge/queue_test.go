package merge_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/merge"
)

func openQueue(t *testing.T) *merge.Queue {
	t.Helper()
	q, err := merge.Open(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueAndPeekDoesNotRemove(t *testing.T) {
	q := openQueue(t)
	_, err := q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a1/t1", TaskID: "t1", AgentName: "a1"})
	require.NoError(t, err)

	e, err := q.Peek()
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "overstory/a1/t1", e.BranchName)

	again, err := q.Peek()
	require.NoError(t, err)
	require.Equal(t, e.ID, again.ID)
}

func TestDequeuePopsInFIFOOrder(t *testing.T) {
	q := openQueue(t)
	_, err := q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a1/t1", TaskID: "t1", AgentName: "a1"})
	require.NoError(t, err)
	_, err = q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a2/t2", TaskID: "t2", AgentName: "a2"})
	require.NoError(t, err)

	first, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, "overstory/a1/t1", first.BranchName)

	second, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, "overstory/a2/t2", second.BranchName)
	require.Greater(t, second.ID, first.ID)

	empty, err := q.Dequeue()
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestUpdateStatusRecordsResolvedTier(t *testing.T) {
	q := openQueue(t)
	entry, err := q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a1/t1", TaskID: "t1", AgentName: "a1"})
	require.NoError(t, err)

	tier := merge.TierAutoResolve
	require.NoError(t, q.UpdateStatus(entry.BranchName, merge.StatusMerged, &tier))

	all, err := q.List(merge.StatusMerged)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ResolvedTier)
	require.Equal(t, merge.TierAutoResolve, *all[0].ResolvedTier)
}

func TestUpdateStatusErrorsForUnknownBranch(t *testing.T) {
	q := openQueue(t)
	err := q.UpdateStatus("nonexistent", merge.StatusFailed, nil)
	require.Error(t, err)
}

func TestListFiltersByStatus(t *testing.T) {
	q := openQueue(t)
	_, err := q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a1/t1", TaskID: "t1", AgentName: "a1"})
	require.NoError(t, err)
	entry2, err := q.Enqueue(merge.EnqueueRequest{BranchName: "overstory/a2/t2", TaskID: "t2", AgentName: "a2"})
	require.NoError(t, err)
	require.NoError(t, q.UpdateStatus(entry2.BranchName, merge.StatusFailed, nil))

	pending, err := q.List(merge.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	all, err := q.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestMigrateBeadIDToTaskIDRenamesLegacyColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE merge_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			branch_name TEXT NOT NULL,
			bead_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			files_modified TEXT NOT NULL DEFAULT '[]',
			enqueued_at TEXT NOT NULL,
			status TEXT NOT NULL,
			resolved_tier TEXT
		)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO merge_queue (branch_name, bead_id, agent_name, enqueued_at, status)
		VALUES ('overstory/a1/t1', 't1', 'a1', '2026-01-01T00:00:00.000Z', 'pending')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	q, err := merge.Open(path)
	require.NoError(t, err)
	defer q.Close()

	entries, err := q.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "t1", entries[0].TaskID)
}
