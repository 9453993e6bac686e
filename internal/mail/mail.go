// Package mail is the durable inter-agent message store with group and
// broadcast addressing, priority-triggered nudges, and the hook-friendly
// inbox injection flow (spec.md §4.3). The table shape is grounded on
// vanducng-goclaw's internal/store/pg/teams_messaging.go SendMessage/
// GetUnread/MarkRead trio, translated from PostgreSQL to SQLite, and the
// group-addressing/reply semantics follow the gastown mail.Router contract
// referenced from other_examples' refinery-manager.go.
package mail

import "time"

// MsgType enumerates the kinds of mail (spec.md §3).
type MsgType string

const (
	TypeStatus      MsgType = "status"
	TypeRequest     MsgType = "request"
	TypeWorkerDone  MsgType = "worker_done"
	TypeMergeReady  MsgType = "merge_ready"
	TypeError       MsgType = "error"
	TypeEscalation  MsgType = "escalation"
	TypeMergeFailed MsgType = "merge_failed"
)

// Priority enumerates the priority levels (spec.md §3).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsUrgent reports whether this message should trigger a watchdog nudge
// (spec.md §4.8): high/urgent priority, or one of the semantically urgent
// types regardless of priority.
func (m Message) IsUrgent() bool {
	if m.Priority == PriorityHigh || m.Priority == PriorityUrgent {
		return true
	}
	switch m.Type {
	case TypeWorkerDone, TypeMergeReady, TypeError, TypeEscalation, TypeMergeFailed:
		return true
	default:
		return false
	}
}

// Message is a single mail row (spec.md §3).
type Message struct {
	ID        int64
	From      string
	To        string
	Subject   string
	Body      string
	Type      MsgType
	Priority  Priority
	ThreadID  *int64
	Payload   string // opaque JSON, empty string if none
	Read      bool
	CreatedAt time.Time
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }
func parseTime(s string) (time.Time, error) { return time.Parse(timeFormat, s) }
