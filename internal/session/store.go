package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/re-cinq/overstory/internal/dbx"
	"github.com/re-cinq/overstory/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL,
	capability TEXT NOT NULL,
	worktree_path TEXT NOT NULL,
	branch_name TEXT NOT NULL,
	task_id TEXT NOT NULL,
	tmux_session TEXT NOT NULL,
	state TEXT NOT NULL,
	pid INTEGER,
	parent_agent TEXT,
	depth INTEGER NOT NULL DEFAULT 0,
	run_id TEXT,
	started_at TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	escalation_level INTEGER NOT NULL DEFAULT 0,
	stalled_since TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent_name ON sessions(agent_name);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_run_id ON sessions(run_id);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	agent_count INTEGER NOT NULL DEFAULT 0,
	coordinator_session_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'running'
);
`

// Store is the durable session registry (spec.md §4.1). Grounded on
// kadirpekel-hector's v2/task/store.go SQLTaskStore: a single *sql.DB
// wrapper exposing typed upsert/get/update methods, one prepared
// statement-free query per call since the volume here is per-agent, not
// per-token.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the session store at path.
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

// Upsert inserts or replaces a session by id. It rejects the write with a
// GroupError-free AgentError if an active session of the same agent name
// already exists under a different id (spec.md §3 invariant 1).
func (s *Store) Upsert(sess AgentSession) error {
	existing, err := s.GetByName(sess.AgentName)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != sess.ID && existing.Active() {
		return errs.Agent(fmt.Sprintf("agent name %q already active", sess.AgentName), nil).
			WithField("agentName", sess.AgentName)
	}

	var pid any
	if sess.PID != nil {
		pid = *sess.PID
	}
	var parent any
	if sess.ParentAgentName != nil {
		parent = *sess.ParentAgentName
	}
	var runID any
	if sess.RunID != nil {
		runID = *sess.RunID
	}
	var stalledSince any
	if sess.StalledSince != nil {
		stalledSince = FormatTime(*sess.StalledSince)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, agent_name, capability, worktree_path, branch_name, task_id,
			tmux_session, state, pid, parent_agent, depth, run_id, started_at, last_activity,
			escalation_level, stalled_since)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_name=excluded.agent_name, capability=excluded.capability,
			worktree_path=excluded.worktree_path, branch_name=excluded.branch_name,
			task_id=excluded.task_id, tmux_session=excluded.tmux_session, state=excluded.state,
			pid=excluded.pid, parent_agent=excluded.parent_agent, depth=excluded.depth,
			run_id=excluded.run_id, started_at=excluded.started_at,
			last_activity=excluded.last_activity, escalation_level=excluded.escalation_level,
			stalled_since=excluded.stalled_since`,
		sess.ID, sess.AgentName, string(sess.Capability), sess.WorktreePath, sess.BranchName,
		sess.TaskID, sess.TmuxSession, string(sess.State), pid, parent, sess.Depth, runID,
		FormatTime(sess.StartedAt), FormatTime(sess.LastActivity), sess.EscalationLevel, stalledSince,
	)
	if err != nil {
		return errs.Agent("upserting session", err).WithField("agentName", sess.AgentName)
	}
	return nil
}

// GetByName returns the most recently started session for agentName, or
// nil if none exists.
func (s *Store) GetByName(agentName string) (*AgentSession, error) {
	row := s.db.QueryRow(`SELECT `+selectCols+` FROM sessions WHERE agent_name=? ORDER BY started_at DESC LIMIT 1`, agentName)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Agent("reading session", err).WithField("agentName", agentName)
	}
	return sess, nil
}

// GetActive returns sessions in {booting, working, stalled}.
func (s *Store) GetActive() ([]AgentSession, error) {
	rows, err := s.db.Query(`SELECT ` + selectCols + ` FROM sessions WHERE state IN ('booting','working','stalled') ORDER BY started_at ASC`)
	if err != nil {
		return nil, errs.Agent("listing active sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetAll returns every session row, no filter.
func (s *Store) GetAll() ([]AgentSession, error) {
	rows, err := s.db.Query(`SELECT ` + selectCols + ` FROM sessions ORDER BY started_at ASC`)
	if err != nil {
		return nil, errs.Agent("listing sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// UpdateState transitions a session to newState, failing if the current
// state is terminal (spec.md §3 invariant 3).
func (s *Store) UpdateState(agentName string, newState State) error {
	existing, err := s.GetByName(agentName)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.Agent("session not found", nil).WithField("agentName", agentName)
	}
	if existing.State.IsTerminal() {
		return errs.Agent("cannot transition a terminal session", nil).
			WithField("agentName", agentName).WithField("state", string(existing.State))
	}

	var stalledSince any
	if newState == StateStalled {
		ss := existing.LastActivity
		stalledSince = FormatTime(ss)
	}

	_, err = s.db.Exec(`UPDATE sessions SET state=?, stalled_since=? WHERE agent_name=? AND started_at=?`,
		string(newState), stalledSince, agentName, FormatTime(existing.StartedAt))
	if err != nil {
		return errs.Agent("updating session state", err).WithField("agentName", agentName)
	}
	return nil
}

// UpdateLastActivity sets last_activity to ts, but never moves it backward
// (spec.md §4.1).
func (s *Store) UpdateLastActivity(agentName string, ts time.Time) error {
	existing, err := s.GetByName(agentName)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.Agent("session not found", nil).WithField("agentName", agentName)
	}
	if ts.Before(existing.LastActivity) {
		return nil
	}
	_, err = s.db.Exec(`UPDATE sessions SET last_activity=? WHERE agent_name=? AND started_at=?`,
		FormatTime(ts), agentName, FormatTime(existing.StartedAt))
	if err != nil {
		return errs.Agent("updating last activity", err).WithField("agentName", agentName)
	}
	return nil
}

// CreateRun inserts a new run row with status "running".
func (s *Store) CreateRun(id string) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at, status) VALUES (?, ?, 'running')`,
		id, FormatTime(Now()))
	if err != nil {
		return errs.Agent("creating run", err).WithField("runId", id)
	}
	return nil
}

// CompleteRun marks a run completed at the current time.
func (s *Store) CompleteRun(id string) error {
	_, err := s.db.Exec(`UPDATE runs SET completed_at=?, status='completed' WHERE id=?`,
		FormatTime(Now()), id)
	if err != nil {
		return errs.Agent("completing run", err).WithField("runId", id)
	}
	return nil
}

// ListRuns returns every run, most recently started first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, started_at, completed_at, agent_count, coordinator_session_id, status FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, errs.Agent("listing runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var completed sql.NullString
		if err := rows.Scan(&r.ID, &started, &completed, &r.AgentCount, &r.CoordinatorSessionID, &r.Status); err != nil {
			return nil, err
		}
		r.StartedAt, err = ParseTime(started)
		if err != nil {
			return nil, err
		}
		if completed.Valid {
			t, err := ParseTime(completed.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectCols = `id, agent_name, capability, worktree_path, branch_name, task_id, tmux_session,
	state, pid, parent_agent, depth, run_id, started_at, last_activity, escalation_level, stalled_since`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*AgentSession, error) {
	var s AgentSession
	var pid sql.NullInt64
	var parent sql.NullString
	var runID sql.NullString
	var started, lastActivity string
	var stalledSince sql.NullString
	var capability, state string

	err := row.Scan(&s.ID, &s.AgentName, &capability, &s.WorktreePath, &s.BranchName, &s.TaskID,
		&s.TmuxSession, &state, &pid, &parent, &s.Depth, &runID, &started, &lastActivity,
		&s.EscalationLevel, &stalledSince)
	if err != nil {
		return nil, err
	}

	s.Capability = Capability(capability)
	s.State = State(state)
	if pid.Valid {
		v := int(pid.Int64)
		s.PID = &v
	}
	if parent.Valid {
		v := parent.String
		s.ParentAgentName = &v
	}
	if runID.Valid {
		v := runID.String
		s.RunID = &v
	}
	s.StartedAt, err = ParseTime(started)
	if err != nil {
		return nil, err
	}
	s.LastActivity, err = ParseTime(lastActivity)
	if err != nil {
		return nil, err
	}
	if stalledSince.Valid {
		t, err := ParseTime(stalledSince.String)
		if err != nil {
			return nil, err
		}
		s.StalledSince = &t
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]AgentSession, error) {
	var out []AgentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
