package merge

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/re-cinq/overstory/internal/dbx"
	"github.com/re-cinq/overstory/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS merge_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	branch_name TEXT NOT NULL,
	task_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	files_modified TEXT NOT NULL DEFAULT '[]',
	enqueued_at TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending','merging','merged','conflict','failed')),
	resolved_tier TEXT CHECK(resolved_tier IS NULL OR resolved_tier IN ('clean-merge','auto-resolve','ai-resolve','reimagine'))
);
CREATE INDEX IF NOT EXISTS idx_merge_queue_status ON merge_queue(status);
CREATE INDEX IF NOT EXISTS idx_merge_queue_branch_name ON merge_queue(branch_name);
`

// Queue is the SQLite-backed FIFO merge queue (spec.md §4.4).
type Queue struct {
	db *sql.DB
}

// Open opens (creating and migrating if necessary) the merge queue at path.
func Open(path string) (*Queue, error) {
	db, err := dbx.Open(path, func(db *sql.DB) error {
		if _, err := db.Exec(schema); err != nil {
			return err
		}
		return migrateBeadIDToTaskID(db)
	})
	if err != nil {
		return nil, err
	}
	return &Queue{db: db}, nil
}

// migrateBeadIDToTaskID renames a legacy `bead_id` column to `task_id` if
// present and `task_id` is absent; otherwise it is a no-op (spec.md §4.4
// "Schema-migration rule").
func migrateBeadIDToTaskID(db *sql.DB) error {
	hasBead, err := dbx.ColumnExists(db, "merge_queue", "bead_id")
	if err != nil || !hasBead {
		return err
	}
	hasTask, err := dbx.ColumnExists(db, "merge_queue", "task_id")
	if err != nil {
		return err
	}
	if hasTask {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE merge_queue RENAME COLUMN bead_id TO task_id`)
	return err
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// EnqueueRequest is the input to Enqueue.
type EnqueueRequest struct {
	BranchName    string
	TaskID        string
	AgentName     string
	FilesModified []string
}

// Enqueue inserts a new pending entry (spec.md §4.4).
func (q *Queue) Enqueue(req EnqueueRequest) (Entry, error) {
	filesJSON, err := json.Marshal(req.FilesModified)
	if err != nil {
		return Entry{}, errs.Merge("marshaling files_modified", req.BranchName, nil, err)
	}
	now := Now()
	res, err := q.db.Exec(`
		INSERT INTO merge_queue (branch_name, task_id, agent_name, files_modified, enqueued_at, status, resolved_tier)
		VALUES (?, ?, ?, ?, ?, 'pending', NULL)`,
		req.BranchName, req.TaskID, req.AgentName, string(filesJSON), formatTime(now),
	)
	if err != nil {
		return Entry{}, errs.Merge("enqueuing entry", req.BranchName, nil, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID: id, BranchName: req.BranchName, TaskID: req.TaskID, AgentName: req.AgentName,
		FilesModified: req.FilesModified, EnqueuedAt: now, Status: StatusPending,
	}, nil
}

// Now is overridable in tests.
var Now = nowImpl

// Peek returns the lowest-id pending entry without removing it.
func (q *Queue) Peek() (*Entry, error) {
	row := q.db.QueryRow(`SELECT ` + selectCols + ` FROM merge_queue WHERE status='pending' ORDER BY id ASC LIMIT 1`)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Merge("peeking queue", "", nil, err)
	}
	return e, nil
}

// Dequeue returns and removes the lowest-id pending entry
// (spec.md §8: popping strictly increases the popped id).
func (q *Queue) Dequeue() (*Entry, error) {
	e, err := q.Peek()
	if err != nil || e == nil {
		return e, err
	}
	if _, err := q.db.Exec(`DELETE FROM merge_queue WHERE id=?`, e.ID); err != nil {
		return nil, errs.Merge("dequeuing entry", e.BranchName, nil, err)
	}
	return e, nil
}

// List returns entries matching status, or every entry if status is "".
func (q *Queue) List(status Status) ([]Entry, error) {
	query := `SELECT ` + selectCols + ` FROM merge_queue`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id ASC`
	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, errs.Merge("listing queue", "", nil, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateStatus transitions the entry for branchName to status, optionally
// recording the resolved tier. Fails if no entry exists for that branch
// (spec.md §4.4).
func (q *Queue) UpdateStatus(branchName string, status Status, tier *Tier) error {
	var tierVal any
	if tier != nil {
		tierVal = string(*tier)
	}
	res, err := q.db.Exec(`UPDATE merge_queue SET status=?, resolved_tier=? WHERE branch_name=?`,
		string(status), tierVal, branchName)
	if err != nil {
		return errs.Merge("updating queue status", branchName, nil, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Merge("no queue entry for branch", branchName, nil, nil)
	}
	return nil
}

const selectCols = `id, branch_name, task_id, agent_name, files_modified, enqueued_at, status, resolved_tier`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var filesJSON, enqueuedAt, status string
	var tier sql.NullString
	if err := row.Scan(&e.ID, &e.BranchName, &e.TaskID, &e.AgentName, &filesJSON, &enqueuedAt, &status, &tier); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filesJSON), &e.FilesModified); err != nil {
		return nil, fmt.Errorf("decoding files_modified: %w", err)
	}
	var err error
	e.EnqueuedAt, err = parseTime(enqueuedAt)
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	if tier.Valid {
		t := Tier(tier.String)
		e.ResolvedTier = &t
	}
	return &e, nil
}
