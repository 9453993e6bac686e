// Package watchdog periodically evaluates every non-completed session's
// health and derives state transitions (spec.md §4.8). It is grounded on
// the teacher's RunnerLoop (internal/engine/runner.go): a cooperative loop
// selecting on ctx.Done() vs time.After between passes, logging failures
// as best-effort rather than propagating them, generalized from "one
// trigger file's mtime" to "per-session terminal liveness plus activity
// staleness".
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/worktree"
)

// SessionStore is the subset of session.Store the watchdog depends on.
type SessionStore interface {
	GetActive() ([]session.AgentSession, error)
	UpdateState(agentName string, newState session.State) error
}

// OnTransition is invoked after a session's state is updated, letting
// callers (e.g. the event log) record the transition without the
// watchdog importing internal/event directly.
type OnTransition func(sess session.AgentSession, from, to session.State)

// Watchdog evaluates every active session on each pass.
type Watchdog struct {
	Sessions    SessionStore
	Multiplexer worktree.Multiplexer
	Config      config.Watchdog
	OnTransition OnTransition

	now func() time.Time
}

// New returns a Watchdog over the given collaborators.
func New(sessions SessionStore, mux worktree.Multiplexer, cfg config.Watchdog) *Watchdog {
	return &Watchdog{
		Sessions:    sessions,
		Multiplexer: mux,
		Config:      cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run loops EvaluateOnce at the configured Tier0 interval until ctx is
// cancelled. Per-pass failures are logged and never stop the loop
// (spec.md §4.8: "Watchdog failures are non-fatal — best-effort").
func (w *Watchdog) Run(ctx context.Context) {
	interval := time.Duration(w.Config.Tier0IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		if err := w.EvaluateOnce(); err != nil {
			slog.Error("watchdog pass error", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// EvaluateOnce runs a single health-evaluation pass over every active
// session (spec.md §4.8).
func (w *Watchdog) EvaluateOnce() error {
	if !w.Config.Tier0Enabled {
		return nil
	}
	active, err := w.Sessions.GetActive()
	if err != nil {
		return fmt.Errorf("listing active sessions: %w", err)
	}

	now := w.now()
	for _, sess := range active {
		target, err := w.deriveState(sess, now)
		if err != nil {
			slog.Warn("watchdog: evaluating session", "agent", sess.AgentName, "error", err)
			continue
		}
		if target == sess.State {
			continue
		}
		if err := w.Sessions.UpdateState(sess.AgentName, target); err != nil {
			slog.Warn("watchdog: transitioning session", "agent", sess.AgentName, "to", target, "error", err)
			continue
		}
		slog.Info("watchdog: session transitioned", "agent", sess.AgentName, "from", sess.State, "to", target)
		if w.OnTransition != nil {
			w.OnTransition(sess, sess.State, target)
		}
	}
	return nil
}
