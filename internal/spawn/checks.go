package spawn

import (
	"fmt"
	"time"

	"github.com/re-cinq/overstory/internal/errs"
	"github.com/re-cinq/overstory/internal/session"
)

// validateHierarchy implements spec.md §4.7 step 1: a non-lead agent must
// have a parent unless the force flag is set.
func (c *Coordinator) validateHierarchy(req Request) error {
	if req.ParentAgentName == "" && req.Capability != session.CapabilityLead && !req.Force {
		return errs.Hierarchy(fmt.Sprintf(
			"agent %q (capability %s) requires a parent; only a %s may be spawned without one",
			req.AgentName, req.Capability, session.CapabilityLead,
		))
	}
	return nil
}

// checkConcurrency implements spec.md §4.7 step 3: the global
// maxConcurrent cap, and the per-run maxSessionsPerRun cap (0 = unlimited)
// when the request carries a run id.
func (c *Coordinator) checkConcurrency(active []session.AgentSession, req Request) error {
	max := c.Config.Agents.MaxConcurrent
	if max > 0 && len(active) >= max {
		return errs.Validation("maxConcurrent", max, fmt.Sprintf("concurrency cap reached (%d active)", len(active)))
	}

	perRunCap := c.Config.Agents.MaxSessionsPerRun
	if perRunCap > 0 && req.RunID != "" {
		count := 0
		for _, s := range active {
			if s.RunID != nil && *s.RunID == req.RunID {
				count++
			}
		}
		if count >= perRunCap {
			return errs.Validation("maxSessionsPerRun", perRunCap, fmt.Sprintf("per-run session cap reached (%d in run %s)", count, req.RunID))
		}
	}
	return nil
}

// checkTaskLock implements spec.md §4.7 step 4: reject if any active
// session already holds this task id, unless the holder is the requesting
// parent re-entering its own task.
func (c *Coordinator) checkTaskLock(active []session.AgentSession, req Request) error {
	for _, s := range active {
		if s.TaskID != req.TaskID {
			continue
		}
		if s.AgentName == req.ParentAgentName {
			continue
		}
		return errs.Validation("taskId", req.TaskID, fmt.Sprintf("task %q is already held by agent %q", req.TaskID, s.AgentName))
	}
	return nil
}

// applyStagger implements spec.md §4.7 step 5: sleeps for
// max(0, staggerDelayMs - (now - mostRecentActiveStartedAt)).
func (c *Coordinator) applyStagger(active []session.AgentSession) {
	if len(active) == 0 {
		return
	}
	var mostRecent time.Time
	for _, s := range active {
		if s.StartedAt.After(mostRecent) {
			mostRecent = s.StartedAt
		}
	}
	elapsed := c.now().Sub(mostRecent)
	remaining := c.Config.StaggerDelay() - elapsed
	if remaining > 0 {
		c.sleep(remaining)
	}
}
