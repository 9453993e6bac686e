package watchdog

import (
	"time"

	"github.com/re-cinq/overstory/internal/session"
)

// deriveState implements spec.md §4.8's per-session rule order:
//
//  1. terminal not alive -> zombie
//  2. terminal alive AND capability in {coordinator, monitor} AND state=booting -> working
//  3. now-lastActivity > zombieMs -> zombie
//  4. now-lastActivity > staleMs -> stalled (caller records stalled-since)
//  5. else: booting -> working once activity has been reported since start,
//     otherwise the session's current observed state.
func (w *Watchdog) deriveState(sess session.AgentSession, now time.Time) (session.State, error) {
	alive, err := w.Multiplexer.IsSessionAlive(sess.TmuxSession)
	if err != nil {
		return sess.State, err
	}
	if !alive {
		return session.StateZombie, nil
	}

	persistent := sess.Capability == session.CapabilityCoordinator || sess.Capability == session.CapabilityMonitor
	if persistent && sess.State == session.StateBooting {
		return session.StateWorking, nil
	}

	idle := now.Sub(sess.LastActivity)
	zombieThreshold := time.Duration(w.Config.ZombieThresholdMs) * time.Millisecond
	staleThreshold := time.Duration(w.Config.StaleThresholdMs) * time.Millisecond

	if zombieThreshold > 0 && idle > zombieThreshold {
		return session.StateZombie, nil
	}
	if staleThreshold > 0 && idle > staleThreshold {
		return session.StateStalled, nil
	}

	if sess.State == session.StateBooting && sess.LastActivity.After(sess.StartedAt) {
		return session.StateWorking, nil
	}
	return sess.State, nil
}
