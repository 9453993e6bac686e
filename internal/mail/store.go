package mail

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/re-cinq/overstory/internal/dbx"
	"github.com/re-cinq/overstory/internal/errs"
)

// Now returns the current time; overridable in tests.
var Now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_agent TEXT NOT NULL,
	to_agent TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	thread_id INTEGER,
	payload TEXT NOT NULL DEFAULT '',
	read INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_to_agent ON messages(to_agent, read);
CREATE INDEX IF NOT EXISTS idx_messages_from_agent ON messages(from_agent);
`

// Store is the durable message table (spec.md §4.3).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the mail store at path.
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

// insertOne inserts a single addressed row and returns its id.
func (s *Store) insertOne(m Message) (int64, error) {
	if m.From == "" || m.To == "" {
		return 0, errs.Mail("from and to must be non-empty", nil)
	}
	if m.Priority == "" {
		m.Priority = PriorityNormal
	}
	var threadID any
	if m.ThreadID != nil {
		threadID = *m.ThreadID
	}
	res, err := s.db.Exec(`
		INSERT INTO messages (from_agent, to_agent, subject, body, type, priority, thread_id, payload, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		m.From, m.To, m.Subject, m.Body, string(m.Type), string(m.Priority), threadID, m.Payload,
		formatTime(Now()),
	)
	if err != nil {
		return 0, errs.Mail("inserting message", err)
	}
	return res.LastInsertId()
}

// Check returns unread messages addressed to agent and marks them read
// atomically (spec.md §4.3).
func (s *Store) Check(agent string) ([]Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Mail("beginning check transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.Query(`SELECT `+selectCols+` FROM messages WHERE to_agent=? AND read=0 ORDER BY id ASC`, agent)
	if err != nil {
		return nil, errs.Mail("querying unread messages", err)
	}
	msgs, err := scanAll(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if len(msgs) > 0 {
		ids := make([]any, len(msgs))
		placeholders := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
			placeholders[i] = "?"
		}
		query := fmt.Sprintf("UPDATE messages SET read=1 WHERE id IN (%s)", strings.Join(placeholders, ","))
		if _, err := tx.Exec(query, ids...); err != nil {
			return nil, errs.Mail("marking messages read", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Mail("committing check transaction", err)
	}
	for i := range msgs {
		msgs[i].Read = true
	}
	return msgs, nil
}

// List returns messages matching the given filters.
func (s *Store) List(from, to string, unreadOnly bool, limit int) ([]Message, error) {
	query := `SELECT ` + selectCols + ` FROM messages WHERE 1=1`
	var args []any
	if from != "" {
		query += " AND from_agent=?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND to_agent=?"
		args = append(args, to)
	}
	if unreadOnly {
		query += " AND read=0"
	}
	query += " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Mail("listing messages", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// MarkRead marks message id as read. Idempotent: a second call on an
// already-read message returns (false, nil) to signal "already read"
// (spec.md §4.3, §8 idempotence invariant).
func (s *Store) MarkRead(id int64) (changed bool, err error) {
	res, err := s.db.Exec(`UPDATE messages SET read=1 WHERE id=? AND read=0`, id)
	if err != nil {
		return false, errs.Mail("marking message read", err).WithField("id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reply inserts a reply to message id, computing the recipient and
// subject per spec.md §4.3's reply semantics.
func (s *Store) Reply(id int64, body string, from string) (int64, error) {
	orig, err := s.getByID(id)
	if err != nil {
		return 0, err
	}
	if orig == nil {
		return 0, errs.Mail("no such message", nil).WithField("id", id)
	}

	to := orig.From
	if from == orig.From {
		to = orig.To
	}
	subject := orig.Subject
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	return s.insertOne(Message{
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
		Type:     TypeStatus,
		Priority: PriorityNormal,
		ThreadID: originalThreadID(orig),
	})
}

func originalThreadID(orig *Message) *int64 {
	if orig.ThreadID != nil {
		return orig.ThreadID
	}
	id := orig.ID
	return &id
}

func (s *Store) getByID(id int64) (*Message, error) {
	row := s.db.QueryRow(`SELECT `+selectCols+` FROM messages WHERE id=?`, id)
	m, err := scanOne(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PurgeFilter controls bulk deletion.
type PurgeFilter struct {
	All          bool
	OlderThanMs  int64
	Agent        string
}

// Purge deletes messages matching the filter and returns the count removed.
func (s *Store) Purge(f PurgeFilter) (int64, error) {
	if f.All {
		res, err := s.db.Exec(`DELETE FROM messages`)
		if err != nil {
			return 0, errs.Mail("purging all messages", err)
		}
		return res.RowsAffected()
	}

	query := "DELETE FROM messages WHERE 1=1"
	var args []any
	if f.Agent != "" {
		query += " AND (from_agent=? OR to_agent=?)"
		args = append(args, f.Agent, f.Agent)
	}
	if f.OlderThanMs > 0 {
		cutoff := Now().Add(-time.Duration(f.OlderThanMs) * time.Millisecond)
		query += " AND created_at < ?"
		args = append(args, formatTime(cutoff))
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, errs.Mail("purging messages", err)
	}
	return res.RowsAffected()
}

const selectCols = `id, from_agent, to_agent, subject, body, type, priority, thread_id, payload, read, created_at`

func scanOne(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var threadID sql.NullInt64
	var typ, priority, created string
	var read int
	if err := row.Scan(&m.ID, &m.From, &m.To, &m.Subject, &m.Body, &typ, &priority, &threadID,
		&m.Payload, &read, &created); err != nil {
		return nil, err
	}
	m.Type = MsgType(typ)
	m.Priority = Priority(priority)
	m.Read = read != 0
	if threadID.Valid {
		v := threadID.Int64
		m.ThreadID = &v
	}
	var err error
	m.CreatedAt, err = parseTime(created)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanAll(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
