// Package event is the append-only chronological record of lifecycle,
// tool, mail, and error events that backs trace/feed/logs introspection
// (spec.md §4.2). Entries are never updated after insertion.
package event

import "time"

// Type enumerates the kinds of events recorded.
type Type string

const (
	TypeToolStart     Type = "tool_start"
	TypeToolEnd       Type = "tool_end"
	TypeSessionStart  Type = "session_start"
	TypeSessionEnd    Type = "session_end"
	TypeMailSent      Type = "mail_sent"
	TypeMailReceived  Type = "mail_received"
	TypeSpawn         Type = "spawn"
	TypeError         Type = "error"
	TypeCustom        Type = "custom"
)

// Level is the severity of a recorded event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// StoredEvent is a single append-only record (spec.md §3).
type StoredEvent struct {
	ID            int64
	RunID         string
	AgentName     string
	SessionID     *string
	Type          Type
	ToolName      *string
	ToolArgs      *string
	ToolDurationMs *int64
	Level         Level
	Data          string // opaque JSON, empty string if none
	CreatedAt     time.Time
}

// TimeFormat matches session.TimeFormat: ISO-8601, millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// Filter narrows a query over the event log.
type Filter struct {
	Since time.Time
	Until time.Time
	Limit int
	// SinceID implements follow-mode polling: return only rows with
	// id > SinceID, regardless of timestamp.
	SinceID int64
}
