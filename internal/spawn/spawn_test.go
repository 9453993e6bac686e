package spawn_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/spawn"
	"github.com/re-cinq/overstory/internal/worktree"
)

type fakeSessions struct {
	active []session.AgentSession
	byName map[string]*session.AgentSession
	saved  []session.AgentSession
}

func newFakeSessions(active ...session.AgentSession) *fakeSessions {
	byName := map[string]*session.AgentSession{}
	for i := range active {
		byName[active[i].AgentName] = &active[i]
	}
	return &fakeSessions{active: active, byName: byName}
}

func (f *fakeSessions) GetActive() ([]session.AgentSession, error) { return f.active, nil }
func (f *fakeSessions) GetByName(name string) (*session.AgentSession, error) {
	return f.byName[name], nil
}
func (f *fakeSessions) Upsert(s session.AgentSession) error {
	f.saved = append(f.saved, s)
	return nil
}

type fakeVCSForWT struct{ created []string }

func (f *fakeVCSForWT) HeadCommit(string) (string, error) { return "abc123", nil }
func (f *fakeVCSForWT) BranchExists(string) bool           { return false }
func (f *fakeVCSForWT) CreateBranch(string, string) error  { return nil }
func (f *fakeVCSForWT) CreateWorktree(path, branch, base string) error {
	f.created = append(f.created, path)
	return nil
}
func (f *fakeVCSForWT) RemoveWorktree(string, bool) error                { return nil }
func (f *fakeVCSForWT) ListWorktrees() ([]string, error)                 { return nil, nil }
func (f *fakeVCSForWT) DiffNameOnly(string, string) ([]string, error)    { return nil, nil }
func (f *fakeVCSForWT) CurrentBranch() (string, error)                   { return "main", nil }
func (f *fakeVCSForWT) Checkout(string) error                            { return nil }
func (f *fakeVCSForWT) Merge(string) ([]string, error)                   { return nil, nil }
func (f *fakeVCSForWT) MergeAbort() error                                { return nil }
func (f *fakeVCSForWT) UnmergedFiles() ([]string, error)                 { return nil, nil }
func (f *fakeVCSForWT) ReadFile(string, string) (string, error)          { return "", nil }
func (f *fakeVCSForWT) StageAll() error                                  { return nil }
func (f *fakeVCSForWT) StagePath(string) error                           { return nil }
func (f *fakeVCSForWT) Commit(string) error                              { return nil }

type fakeMultiplexer struct {
	sessions map[string]bool
	sentKeys []string
}

func newFakeMultiplexer() *fakeMultiplexer {
	return &fakeMultiplexer{sessions: map[string]bool{}}
}

func (f *fakeMultiplexer) CreateSession(name, cwd, command string, args, env []string) (int, error) {
	f.sessions[name] = true
	return 4242, nil
}
func (f *fakeMultiplexer) KillSession(name string) error { delete(f.sessions, name); return nil }
func (f *fakeMultiplexer) ListSessions() ([]string, error) {
	var out []string
	for n := range f.sessions {
		out = append(out, n)
	}
	return out, nil
}
func (f *fakeMultiplexer) IsSessionAlive(name string) (bool, error) { return f.sessions[name], nil }
func (f *fakeMultiplexer) SendKeys(name, keys string) error {
	f.sentKeys = append(f.sentKeys, keys)
	return nil
}
func (f *fakeMultiplexer) CurrentSessionName() (string, error) { return "", nil }

func newTestCoordinator(t *testing.T, active ...session.AgentSession) (*spawn.Coordinator, *fakeSessions, *fakeMultiplexer) {
	t.Helper()
	sessions := newFakeSessions(active...)
	vcs := &fakeVCSForWT{}
	mgr := worktree.NewManager(vcs, t.TempDir())
	mux := newFakeMultiplexer()
	cfg := &config.Config{
		Project: config.Project{Name: "proj", CanonicalBranch: "main"},
		Agents:  config.Agents{MaxConcurrent: 5, Command: "claude"},
	}
	co := spawn.NewCoordinator(sessions, mgr, mux, nil, nil, cfg, "proj", t.TempDir())
	return co, sessions, mux
}

func TestSlingRejectsOrphanNonLeadWithoutForce(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	_, err := co.Sling(spawn.Request{AgentName: "b1", Capability: session.CapabilityBuilder, TaskID: "t1"})
	require.Error(t, err)
}

func TestSlingAllowsLeadWithoutParent(t *testing.T) {
	co, sessions, mux := newTestCoordinator(t)
	res, err := co.Sling(spawn.Request{AgentName: "lead1", Capability: session.CapabilityLead, TaskID: "t1"})
	require.NoError(t, err)
	require.Equal(t, session.StateBooting, res.Session.State)
	require.Len(t, sessions.saved, 1)
	require.Len(t, mux.sentKeys, 1)
}

func TestSlingRejectsDuplicateTaskLock(t *testing.T) {
	existing := session.AgentSession{AgentName: "b1", TaskID: "t1", State: session.StateWorking, StartedAt: time.Now()}
	co, _, _ := newTestCoordinator(t, existing)
	_, err := co.Sling(spawn.Request{AgentName: "b2", Capability: session.CapabilityBuilder, TaskID: "t1", ParentAgentName: "lead1"})
	require.Error(t, err)
}

func TestSlingAllowsParentReenteringOwnTask(t *testing.T) {
	existing := session.AgentSession{AgentName: "lead1", TaskID: "t1", State: session.StateWorking, StartedAt: time.Now()}
	co, _, _ := newTestCoordinator(t, existing)
	_, err := co.Sling(spawn.Request{AgentName: "b1", Capability: session.CapabilityBuilder, TaskID: "t1", ParentAgentName: "lead1"})
	require.NoError(t, err)
}

func TestSlingRejectsWhenConcurrencyCapReached(t *testing.T) {
	existing := session.AgentSession{AgentName: "b1", TaskID: "t1", State: session.StateWorking, StartedAt: time.Now()}
	co, _, _ := newTestCoordinator(t, existing)
	co.Config.Agents.MaxConcurrent = 1
	_, err := co.Sling(spawn.Request{AgentName: "b2", Capability: session.CapabilityBuilder, TaskID: "t2", ParentAgentName: "lead1"})
	require.Error(t, err)
}

func TestSlingRejectsDuplicateAgentName(t *testing.T) {
	existing := session.AgentSession{AgentName: "b1", TaskID: "t1", State: session.StateWorking, StartedAt: time.Now()}
	co, _, _ := newTestCoordinator(t, existing)
	_, err := co.Sling(spawn.Request{AgentName: "b1", Capability: session.CapabilityBuilder, TaskID: "t2", ParentAgentName: "lead1"})
	require.Error(t, err)
}
