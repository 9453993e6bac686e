// Package spawn implements the "sling" composite operation: the ordered,
// rollback-on-failure sequence that turns a requested agent name,
// capability, and task id into a live agent inside its own worktree and
// terminal session (spec.md §4.7). It is grounded on the teacher's
// processConcern (internal/engine/engine.go), which composes many small
// git/worktree/log steps with early-return error wrapping at each step;
// this package generalizes that shape from "detect new commits, rebase,
// regenerate" to "validate, lock, stagger, and create".
package spawn

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/errs"
	"github.com/re-cinq/overstory/internal/event"
	"github.com/re-cinq/overstory/internal/mail"
	"github.com/re-cinq/overstory/internal/provider"
	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/worktree"
)

// Request is the input to Coordinator.Sling (spec.md §4.7).
type Request struct {
	AgentName       string
	Capability      session.Capability
	TaskID          string
	ParentAgentName string
	Depth           int
	SpecPath        string
	Force           bool
	RunID           string
}

// Result is the outcome of a successful Sling.
type Result struct {
	Session session.AgentSession
	Domains []string
}

// SessionLister is the subset of session.Store the coordinator needs to
// evaluate hierarchy, concurrency, and task-lock rules.
type SessionLister interface {
	GetActive() ([]session.AgentSession, error)
	GetByName(agentName string) (*session.AgentSession, error)
	Upsert(session.AgentSession) error
}

// Coordinator performs the 13-step spawn sequence over its collaborators.
type Coordinator struct {
	Sessions     SessionLister
	Worktrees    *worktree.Manager
	Multiplexer  worktree.Multiplexer
	Mail         *mail.Client
	Events       *event.Store
	Config       *config.Config
	ProjectName  string
	RepoRoot     string

	// getuid is overridable in tests; defaults to os.Getuid on platforms
	// that expose it (spec.md §4.7 step 2).
	getuid func() (int, bool)
	// sleep is overridable in tests to avoid real stagger delays.
	sleep func(time.Duration)
	// now is overridable in tests for deterministic stagger/timestamp math.
	now func() time.Time
	// newID generates session ids; overridable in tests.
	newID func() string
}

// NewCoordinator builds a Coordinator from its collaborators.
func NewCoordinator(sessions SessionLister, wt *worktree.Manager, mux worktree.Multiplexer, mailClient *mail.Client, events *event.Store, cfg *config.Config, projectName, repoRoot string) *Coordinator {
	return &Coordinator{
		Sessions:    sessions,
		Worktrees:   wt,
		Multiplexer: mux,
		Mail:        mailClient,
		Events:      events,
		Config:      cfg,
		ProjectName: projectName,
		RepoRoot:    repoRoot,
		getuid:      defaultGetuid,
		sleep:       time.Sleep,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:       func() string { return uuid.NewString() },
	}
}

// defaultGetuid reports the process's numeric uid. os.Getuid returns -1 on
// platforms with no such concept (e.g. Windows); that case is reported as
// "not exposed" rather than a root uid (spec.md §4.7 step 2).
func defaultGetuid() (int, bool) {
	uid := os.Getuid()
	if uid < 0 {
		return 0, false
	}
	return uid, true
}

// Sling runs the full 13-step spawn sequence (spec.md §4.7). Any failure
// at or after worktree creation (step 8) attempts a worktree+branch
// rollback; a failure before step 8 leaves no durable state.
func (c *Coordinator) Sling(req Request) (Result, error) {
	if err := c.validateHierarchy(req); err != nil {
		return Result{}, err
	}
	if uid, ok := c.getuid(); ok && uid == 0 {
		return Result{}, errs.Hierarchy("refusing to spawn as root (uid 0)")
	}

	active, err := c.Sessions.GetActive()
	if err != nil {
		return Result{}, fmt.Errorf("listing active sessions: %w", err)
	}
	if err := c.checkConcurrency(active, req); err != nil {
		return Result{}, err
	}
	if err := c.checkTaskLock(active, req); err != nil {
		return Result{}, err
	}
	c.applyStagger(active)

	if existing, err := c.Sessions.GetByName(req.AgentName); err != nil {
		return Result{}, fmt.Errorf("checking name uniqueness: %w", err)
	} else if existing != nil && existing.Active() {
		return Result{}, errs.Agent(fmt.Sprintf("agent name %q already active", req.AgentName), nil).
			WithField("agentName", req.AgentName)
	}

	domains := inferDomains(req, c.Config)

	branch := worktree.BranchName(req.AgentName, req.TaskID)
	worktreePath, err := c.Worktrees.Create(req.AgentName, branch, c.Config.Project.CanonicalBranch)
	if err != nil {
		return Result{}, fmt.Errorf("creating worktree: %w", err)
	}

	sess, rollbackErr := c.finishSpawn(req, branch, worktreePath, domains)
	if rollbackErr != nil {
		_ = c.Worktrees.Remove(req.AgentName)
		return Result{}, rollbackErr
	}
	return Result{Session: sess, Domains: domains}, nil
}

// finishSpawn runs steps 9-13, returning the registered session. Any error
// here triggers the caller's rollback.
func (c *Coordinator) finishSpawn(req Request, branch, worktreePath string, domains []string) (session.AgentSession, error) {
	if err := writeHookSettings(worktreePath, req.AgentName, req.Capability, c.Config.Permissions); err != nil {
		return session.AgentSession{}, fmt.Errorf("deploying hook settings: %w", err)
	}

	from := req.ParentAgentName
	if from == "" {
		from = "orchestrator"
	}
	if c.Mail != nil {
		if _, err := c.Mail.Send(mail.SendRequest{
			From:    from,
			To:      req.AgentName,
			Subject: "New task assignment",
			Body:    dispatchBody(req),
			Type:    mail.TypeStatus,
		}); err != nil {
			return session.AgentSession{}, fmt.Errorf("dispatching mail: %w", err)
		}
	}

	res, err := provider.Resolve(c.Config, string(req.Capability))
	if err != nil {
		return session.AgentSession{}, fmt.Errorf("resolving model/provider: %w", err)
	}
	env := make([]string, 0, len(res.Env)+2)
	for k, v := range res.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "OVERSTORY_AGENT_NAME="+req.AgentName, "OVERSTORY_WORKTREE_PATH="+worktreePath)

	tmuxName := worktree.TmuxSessionName(c.ProjectName, req.AgentName)
	args := c.Config.Agents.Args
	if res.Model != "" {
		args = append(append([]string{}, args...), "--model", res.Model)
	}
	pid, err := c.Multiplexer.CreateSession(tmuxName, worktreePath, c.Config.Agents.Command, args, env)
	if err != nil {
		return session.AgentSession{}, fmt.Errorf("creating terminal session: %w", err)
	}

	beacon := beaconLine(req)
	if err := c.Multiplexer.SendKeys(tmuxName, beacon); err != nil {
		return session.AgentSession{}, fmt.Errorf("sending beacon: %w", err)
	}

	now := c.now()
	var parent *string
	if req.ParentAgentName != "" {
		p := req.ParentAgentName
		parent = &p
	}
	var runID *string
	if req.RunID != "" {
		r := req.RunID
		runID = &r
	}
	sess := session.AgentSession{
		ID:              c.newID(),
		AgentName:       req.AgentName,
		Capability:      req.Capability,
		WorktreePath:    worktreePath,
		BranchName:      branch,
		TaskID:          req.TaskID,
		TmuxSession:     tmuxName,
		State:           session.StateBooting,
		PID:             &pid,
		ParentAgentName: parent,
		Depth:           req.Depth,
		RunID:           runID,
		StartedAt:       now,
		LastActivity:    now,
	}
	if err := c.Sessions.Upsert(sess); err != nil {
		return session.AgentSession{}, fmt.Errorf("registering session: %w", err)
	}

	if c.Events != nil {
		_, _ = c.Events.Insert(event.StoredEvent{ // fire-and-forget: event recording is a non-essential side effect
			RunID:     req.RunID,
			AgentName: req.AgentName,
			Type:      event.TypeSpawn,
			Level:     event.LevelInfo,
		})
	}

	return sess, nil
}

func dispatchBody(req Request) string {
	return fmt.Sprintf("Task: %s\nCapability: %s\nSpec: %s", req.TaskID, req.Capability, req.SpecPath)
}

func beaconLine(req Request) string {
	parent := req.ParentAgentName
	if parent == "" {
		parent = "none"
	}
	return fmt.Sprintf("Agent %s (%s) starting task %s at depth %d, parent %s.",
		req.AgentName, req.Capability, req.TaskID, req.Depth, parent)
}
