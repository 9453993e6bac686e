// Package merge implements the FIFO merge queue and the tiered conflict
// resolution engine (spec.md §4.4, §4.5). The queue's SQL shape is
// grounded on kadirpekel-hector's v2/task/store.go pattern; the resolver
// generalizes the teacher's rebaseWorktree/commitChanges/invokeAgent
// machinery (internal/engine/engine.go) from "rebase-and-regenerate"
// semantics to "merge-and-escalate" semantics.
package merge

import "time"

// Status is the lifecycle state of a merge queue entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusMerging  Status = "merging"
	StatusMerged   Status = "merged"
	StatusConflict Status = "conflict"
	StatusFailed   Status = "failed"
)

// Tier names the resolver steps (spec.md §4.5).
type Tier string

const (
	TierCleanMerge  Tier = "clean-merge"
	TierAutoResolve Tier = "auto-resolve"
	TierAIResolve   Tier = "ai-resolve"
	TierReimagine   Tier = "reimagine"
)

// Entry is a single queued branch awaiting merge (spec.md §3).
type Entry struct {
	ID            int64
	BranchName    string
	TaskID        string
	AgentName     string
	FilesModified []string
	EnqueuedAt    time.Time
	Status        Status
	ResolvedTier  *Tier
}

// Result is the outcome of running the resolver against an Entry
// (spec.md §4.5).
type Result struct {
	Entry         Entry
	Success       bool
	Tier          Tier
	ConflictFiles []string
	ErrorMessage  string
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string         { return t.UTC().Format(timeFormat) }
func parseTime(s string) (time.Time, error) { return time.Parse(timeFormat, s) }

func nowImpl() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
