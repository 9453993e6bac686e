package event

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/re-cinq/overstory/internal/dbx"
	"github.com/re-cinq/overstory/internal/errs"
)

// Now returns the current time; overridable in tests for deterministic
// ordering assertions.
var Now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	agent_name TEXT NOT NULL,
	session_id TEXT,
	type TEXT NOT NULL,
	tool_name TEXT,
	tool_args TEXT,
	tool_duration_ms INTEGER,
	level TEXT NOT NULL DEFAULT 'info',
	data TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_agent_name ON events(agent_name);
CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at, id);
`

// Store is the append-only event log (spec.md §4.2). Grounded on the
// teacher's RunnerLoop trigger-mtime polling idea, generalized here into a
// growing autoincrement-id cursor for follow-mode consumers instead of a
// file mtime.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the event store at path.
func Open(path string) (*Store, error) {
	db, err := dbx.Open(path, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert assigns a monotonic id and the current timestamp, and appends the
// event. The returned StoredEvent carries both.
func (s *Store) Insert(e StoredEvent) (StoredEvent, error) {
	e.CreatedAt = Now()

	var sessionID, toolName, toolArgs any
	if e.SessionID != nil {
		sessionID = *e.SessionID
	}
	if e.ToolName != nil {
		toolName = *e.ToolName
	}
	if e.ToolArgs != nil {
		toolArgs = *e.ToolArgs
	}
	var toolDuration any
	if e.ToolDurationMs != nil {
		toolDuration = *e.ToolDurationMs
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	res, err := s.db.Exec(`
		INSERT INTO events (run_id, agent_name, session_id, type, tool_name, tool_args,
			tool_duration_ms, level, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.AgentName, sessionID, string(e.Type), toolName, toolArgs, toolDuration,
		string(e.Level), e.Data, formatTime(e.CreatedAt),
	)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("inserting event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoredEvent{}, fmt.Errorf("reading event id: %w", err)
	}
	e.ID = id
	return e, nil
}

const selectCols = `id, run_id, agent_name, session_id, type, tool_name, tool_args,
	tool_duration_ms, level, data, created_at`

// GetByAgent returns events for name, ordered chronologically (created_at,
// then id), honoring the filter's Since/Until/Limit.
func (s *Store) GetByAgent(name string, f Filter) ([]StoredEvent, error) {
	query := `SELECT ` + selectCols + ` FROM events WHERE agent_name=?`
	args := []any{name}
	query, args = applyFilter(query, args, f)
	return s.query(query, args...)
}

// GetByRun returns events for a run, ordered chronologically.
func (s *Store) GetByRun(runID string, f Filter) ([]StoredEvent, error) {
	query := `SELECT ` + selectCols + ` FROM events WHERE run_id=?`
	args := []any{runID}
	query, args = applyFilter(query, args, f)
	return s.query(query, args...)
}

// GetTimeline returns every event, ordered chronologically, across agents.
func (s *Store) GetTimeline(f Filter) ([]StoredEvent, error) {
	query := `SELECT ` + selectCols + ` FROM events WHERE 1=1`
	var args []any
	query, args = applyFilter(query, args, f)
	return s.query(query, args...)
}

func applyFilter(query string, args []any, f Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(query)
	if f.SinceID > 0 {
		b.WriteString(" AND id > ?")
		args = append(args, f.SinceID)
	}
	if !f.Since.IsZero() {
		b.WriteString(" AND created_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		b.WriteString(" AND created_at <= ?")
		args = append(args, formatTime(f.Until))
	}
	b.WriteString(" ORDER BY created_at ASC, id ASC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}
	return b.String(), args
}

func (s *Store) query(query string, args ...any) ([]StoredEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Lifecycle("querying events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var sessionID, toolName, toolArgs sql.NullString
		var toolDuration sql.NullInt64
		var typ, level, createdAt string

		if err := rows.Scan(&e.ID, &e.RunID, &e.AgentName, &sessionID, &typ, &toolName, &toolArgs,
			&toolDuration, &level, &e.Data, &createdAt); err != nil {
			return nil, err
		}
		e.Type = Type(typ)
		e.Level = Level(level)
		if sessionID.Valid {
			v := sessionID.String
			e.SessionID = &v
		}
		if toolName.Valid {
			v := toolName.String
			e.ToolName = &v
		}
		if toolArgs.Valid {
			v := toolArgs.String
			e.ToolArgs = &v
		}
		if toolDuration.Valid {
			v := toolDuration.Int64
			e.ToolDurationMs = &v
		}
		e.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
