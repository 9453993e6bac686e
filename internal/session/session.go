// Package session is the authoritative registry of live agents: their
// runtime state, hierarchy, and timing. It is backed by a SQLite database
// opened in WAL mode (internal/dbx) so that the orchestrator process and
// the agent subprocesses invoking hook helpers can read and write
// concurrently.
package session

import "time"

// State is the lifecycle state of an AgentSession.
type State string

const (
	StateBooting   State = "booting"
	StateWorking   State = "working"
	StateStalled   State = "stalled"
	StateZombie    State = "zombie"
	StateCompleted State = "completed"
)

// IsTerminal reports whether s is a terminal state: no further mutation is
// allowed beyond history queries.
func (s State) IsTerminal() bool {
	return s == StateZombie || s == StateCompleted
}

// Capability is the role an agent plays.
type Capability string

const (
	CapabilityLead        Capability = "lead"
	CapabilityBuilder     Capability = "builder"
	CapabilityScout       Capability = "scout"
	CapabilityReviewer    Capability = "reviewer"
	CapabilityMerger      Capability = "merger"
	CapabilityCoordinator Capability = "coordinator"
	CapabilityMonitor     Capability = "monitor"
)

// AgentSession uniquely identifies one running agent (spec.md §3).
type AgentSession struct {
	ID              string
	AgentName       string
	Capability      Capability
	WorktreePath    string
	BranchName      string
	TaskID          string
	TmuxSession     string
	State           State
	PID             *int
	ParentAgentName *string
	Depth           int
	RunID           *string
	StartedAt       time.Time
	LastActivity    time.Time
	EscalationLevel int
	StalledSince    *time.Time
}

// Active reports whether the session is in a non-terminal state.
func (s AgentSession) Active() bool {
	return !s.State.IsTerminal()
}

// Run groups sessions of one swarm invocation (spec.md §3).
type Run struct {
	ID                   string
	StartedAt            time.Time
	CompletedAt          *time.Time
	AgentCount           int
	CoordinatorSessionID string
	Status               string
}

// TimeFormat is the ISO-8601 millisecond-precision format used for every
// stored timestamp, matching the teacher's nowRFC3339 helper generalized
// to millisecond precision per spec.md §3.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Now returns the current time truncated to millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// FormatTime renders t in the stored timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp string.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
