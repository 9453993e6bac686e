package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// RecoveryManager decides whether a resuming agent session should be
// handed its prior checkpoint, and renders the recovery block
// hooks.Prime injects into an agent's session-start context (spec.md
// §4.9: "a session-recovery block if a checkpoint exists").
//
// Grounded on hector's checkpoint.RecoveryManager.recoverCheckpoint:
// the same expiry check before resumption, simplified from hector's
// phase/INPUT_REQUIRED state machine down to a single staleness
// threshold since Overstory checkpoints carry no input-required phase
// of their own.
type RecoveryManager struct {
	Store *Store
	// MaxAge bounds how old a checkpoint may be before it is treated as
	// expired and skipped rather than resumed. Zero means no limit.
	MaxAge time.Duration
}

// NewRecoveryManager returns a RecoveryManager backed by store.
func NewRecoveryManager(store *Store, maxAge time.Duration) *RecoveryManager {
	return &RecoveryManager{Store: store, MaxAge: maxAge}
}

// Recover loads agentName's checkpoint, if any, and renders it as a
// recovery block. It returns ("", false, nil) when there is nothing to
// recover, including when the checkpoint has expired — an expired
// checkpoint is cleared rather than surfaced, mirroring hector's
// recoverCheckpoint discarding expired state before considering resume.
func (m *RecoveryManager) Recover(agentName string, now time.Time) (string, bool, error) {
	cp, ok, err := m.Store.LoadCheckpoint(agentName)
	if err != nil || !ok {
		return "", false, err
	}

	if m.MaxAge > 0 && now.Sub(cp.CapturedAt) > m.MaxAge {
		if clearErr := m.Store.ClearCheckpoint(agentName); clearErr != nil {
			return "", false, clearErr
		}
		return "", false, nil
	}

	return renderRecoveryBlock(cp), true, nil
}

func renderRecoveryBlock(cp Checkpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resuming task %s from a checkpoint captured %s.\n", cp.TaskID, cp.CapturedAt.Format(time.RFC3339))
	if cp.ProgressSummary != "" {
		fmt.Fprintf(&b, "Progress so far: %s\n", cp.ProgressSummary)
	}
	if len(cp.ModifiedFiles) > 0 {
		fmt.Fprintf(&b, "Files modified: %s\n", strings.Join(cp.ModifiedFiles, ", "))
	}
	if cp.PendingWork != "" {
		fmt.Fprintf(&b, "Pending work: %s\n", cp.PendingWork)
	}
	if cp.CurrentBranch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", cp.CurrentBranch)
	}
	return strings.TrimRight(b.String(), "\n")
}
