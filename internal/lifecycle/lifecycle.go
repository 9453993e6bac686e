// Package lifecycle implements cross-session resumption primitives
// (spec.md §3 "SessionCheckpoint / SessionHandoff"): externalizing an
// agent's progress to disk so a later session can pick up where a prior
// one left off, and recording pending takeovers between sessions.
//
// Grounded on hector's checkpoint/recovery.go RecoveryManager: the same
// load-validate-resume shape, adapted from a task-execution-state blob
// keyed by (appName, userID, sessionID, taskID) to a per-agent
// checkpoint/handoff pair keyed by agent name, stored as the two flat
// JSON files spec.md §6 names (agents/{name}/checkpoint.json,
// agents/{name}/handoffs.json) rather than hector's pluggable Storage
// backend.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/re-cinq/overstory/internal/errs"
	"github.com/re-cinq/overstory/internal/fileutil"
)

// Checkpoint externalizes an agent's progress so a later session (the
// same agent resumed, or a handoff recipient) can reconstruct context
// without replaying the whole transcript (spec.md §3).
type Checkpoint struct {
	AgentName        string    `json:"agentName"`
	TaskID           string    `json:"taskId"`
	ProgressSummary  string    `json:"progressSummary"`
	ModifiedFiles    []string  `json:"modifiedFiles"`
	PendingWork      string    `json:"pendingWork"`
	CurrentBranch    string    `json:"currentBranch"`
	KnowledgeDomains []string  `json:"knowledgeDomains,omitempty"`
	CapturedAt       time.Time `json:"capturedAt"`
}

// Handoff records a pending or completed takeover from one session to
// another. ToSession and CompletedAt are the zero value until a
// recipient actually picks up the handoff.
type Handoff struct {
	FromSession string     `json:"fromSession"`
	ToSession   string     `json:"toSession,omitempty"`
	AgentName   string     `json:"agentName"`
	TaskID      string     `json:"taskId"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsComplete reports whether a recipient has picked up this handoff.
func (h Handoff) IsComplete() bool {
	return h.ToSession != "" && h.CompletedAt != nil
}

// Store persists checkpoints and handoffs under a project's state
// directory, one checkpoint.json and one handoffs.json per agent
// (spec.md §6).
type Store struct {
	stateDir string
}

// NewStore returns a Store rooted at stateDir (typically
// config.StateDir(projectRoot)).
func NewStore(stateDir string) *Store {
	return &Store{stateDir: stateDir}
}

func (s *Store) agentDir(agentName string) string {
	return filepath.Join(s.stateDir, "agents", agentName)
}

func (s *Store) checkpointPath(agentName string) string {
	return filepath.Join(s.agentDir(agentName), "checkpoint.json")
}

func (s *Store) handoffsPath(agentName string) string {
	return filepath.Join(s.agentDir(agentName), "handoffs.json")
}

// SaveCheckpoint writes c atomically to agents/{name}/checkpoint.json,
// overwriting any prior checkpoint for the same agent.
func (s *Store) SaveCheckpoint(c Checkpoint) error {
	if c.AgentName == "" {
		return errs.Validation("agentName", c.AgentName, "checkpoint requires an agent name")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.Lifecycle("marshaling checkpoint", err)
	}
	if err := fileutil.WriteFileAtomic(s.checkpointPath(c.AgentName), data, 0o644); err != nil {
		return errs.Lifecycle(fmt.Sprintf("saving checkpoint for %s", c.AgentName), err)
	}
	return nil
}

// LoadCheckpoint reads the most recent checkpoint for agentName. It
// returns (Checkpoint{}, false, nil) if the agent has never
// checkpointed — this is the expected steady state for most agents,
// not an error.
func (s *Store) LoadCheckpoint(agentName string) (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.checkpointPath(agentName))
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, errs.Lifecycle(fmt.Sprintf("loading checkpoint for %s", agentName), err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, false, errs.Lifecycle(fmt.Sprintf("parsing checkpoint for %s", agentName), err)
	}
	return c, true, nil
}

// ClearCheckpoint removes an agent's checkpoint, e.g. after the agent
// completes its task cleanly and resumption is no longer meaningful.
func (s *Store) ClearCheckpoint(agentName string) error {
	err := os.Remove(s.checkpointPath(agentName))
	if err != nil && !os.IsNotExist(err) {
		return errs.Lifecycle(fmt.Sprintf("clearing checkpoint for %s", agentName), err)
	}
	return nil
}

// RecordHandoff appends h to the agent's append-only handoff history
// (spec.md §6: "append-only per-agent handoff history").
func (s *Store) RecordHandoff(h Handoff) error {
	if h.AgentName == "" || h.FromSession == "" {
		return errs.Validation("handoff", h, "handoff requires an agent name and source session")
	}
	history, err := s.Handoffs(h.AgentName)
	if err != nil {
		return err
	}
	history = append(history, h)
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return errs.Lifecycle("marshaling handoff history", err)
	}
	if err := fileutil.WriteFileAtomic(s.handoffsPath(h.AgentName), data, 0o644); err != nil {
		return errs.Lifecycle(fmt.Sprintf("recording handoff for %s", h.AgentName), err)
	}
	return nil
}

// Handoffs returns an agent's full handoff history in chronological
// (append) order, or an empty slice if none exist yet.
func (s *Store) Handoffs(agentName string) ([]Handoff, error) {
	data, err := os.ReadFile(s.handoffsPath(agentName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Lifecycle(fmt.Sprintf("loading handoff history for %s", agentName), err)
	}
	var history []Handoff
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, errs.Lifecycle(fmt.Sprintf("parsing handoff history for %s", agentName), err)
	}
	return history, nil
}

// CompleteHandoff marks the most recent incomplete handoff for
// agentName as picked up by toSession at completedAt. It returns
// errs.Lifecycle if there is no pending handoff to complete.
func (s *Store) CompleteHandoff(agentName, toSession string, completedAt time.Time) error {
	history, err := s.Handoffs(agentName)
	if err != nil {
		return err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsComplete() {
			history[i].ToSession = toSession
			ts := completedAt
			history[i].CompletedAt = &ts
			data, marshalErr := json.MarshalIndent(history, "", "  ")
			if marshalErr != nil {
				return errs.Lifecycle("marshaling handoff history", marshalErr)
			}
			if writeErr := fileutil.WriteFileAtomic(s.handoffsPath(agentName), data, 0o644); writeErr != nil {
				return errs.Lifecycle(fmt.Sprintf("completing handoff for %s", agentName), writeErr)
			}
			return nil
		}
	}
	return errs.Lifecycle(fmt.Sprintf("no pending handoff for %s", agentName), nil)
}
