// Package cli implements Overstory's thin cobra command layer: it wires
// the core packages (config, session, mail, merge, event, worktree,
// spawn, watchdog, hooks, lifecycle, provider, knowledge) together per
// invocation and delegates all real work to them. Grounded on the
// teacher's internal/cli (a cobra root command plus one file per
// subcommand, each loading+validating config and resolving the git root
// before doing anything else) — generalized from "load a line.yaml and
// operate on concerns" to "load a .overstory/config.yaml and operate on
// agent sessions".
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/event"
	"github.com/re-cinq/overstory/internal/knowledge"
	"github.com/re-cinq/overstory/internal/mail"
	"github.com/re-cinq/overstory/internal/merge"
	"github.com/re-cinq/overstory/internal/provider"
	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/worktree"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App bundles every store and collaborator a command needs, opened
// against one project's state directory (spec.md §6). Commands open an
// App on entry and close it on every exit path (spec.md §5
// "shared-resource policy").
type App struct {
	Config      *config.Config
	ProjectRoot string
	StateDir    string

	Sessions    *session.Store
	Mail        *mail.Client
	MailStore   *mail.Store
	Nudges      *mail.NudgeStore
	MergeQueue  *merge.Queue
	Events      *event.Store
	Worktrees   *worktree.Manager
	Multiplexer worktree.Multiplexer
	Knowledge   knowledge.Client
	CLI         provider.CLI
	VCS         worktree.VCS
}

// sessionSource adapts *session.Store to mail.SessionSource, translating
// the active AgentSession list into mail's minimal Recipient view. It
// lives here rather than in internal/session or internal/mail so neither
// package depends on the other.
type sessionSource struct{ sessions *session.Store }

func (s sessionSource) ActiveRecipients() ([]mail.Recipient, error) {
	active, err := s.sessions.GetActive()
	if err != nil {
		return nil, err
	}
	out := make([]mail.Recipient, len(active))
	for i, a := range active {
		out[i] = mail.Recipient{AgentName: a.AgentName, Capability: string(a.Capability)}
	}
	return out, nil
}

// OpenApp loads configPath, resolves the project root, and opens every
// durable store under {projectRoot}/.overstory. Callers must call
// Close() on every exit path.
func OpenApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %s\n", e)
		}
		return nil, fmt.Errorf("%d config validation error(s)", len(errs))
	}

	projectRoot := cfg.Project.Root
	if projectRoot == "" {
		root, rootErr := config.ResolveProjectRoot(".")
		if rootErr != nil {
			return nil, rootErr
		}
		projectRoot = root
	}
	stateDir := config.StateDir(projectRoot)

	sessions, err := session.Open(config.StatePath(projectRoot, "sessions.db"))
	if err != nil {
		return nil, err
	}
	mailStore, err := mail.Open(config.StatePath(projectRoot, "mail.db"))
	if err != nil {
		sessions.Close()
		return nil, err
	}
	mergeQueue, err := merge.Open(config.StatePath(projectRoot, "merge-queue.db"))
	if err != nil {
		sessions.Close()
		mailStore.Close()
		return nil, err
	}
	events, err := event.Open(config.StatePath(projectRoot, "events.db"))
	if err != nil {
		sessions.Close()
		mailStore.Close()
		mergeQueue.Close()
		return nil, err
	}

	nudges := mail.NewNudgeStore(config.StatePath(projectRoot, "pending-nudges"))
	mailClient := mail.NewClient(mailStore, sessionSource{sessions: sessions}, nudges)

	baseDir := cfg.Worktrees.BaseDir
	if baseDir == "" {
		baseDir = config.StatePath(projectRoot, "worktrees")
	}
	vcs := worktree.NewGitVCS(projectRoot)
	wt := worktree.NewManager(vcs, baseDir)
	mux := worktree.NewTmuxMultiplexer()

	var kc knowledge.Client = knowledge.NewInMemoryClient()

	return &App{
		Config:      cfg,
		ProjectRoot: projectRoot,
		StateDir:    stateDir,
		Sessions:    sessions,
		Mail:        mailClient,
		MailStore:   mailStore,
		Nudges:      nudges,
		MergeQueue:  mergeQueue,
		Events:      events,
		Worktrees:   wt,
		Multiplexer: mux,
		Knowledge:   kc,
		CLI:         provider.NewPTYInvoker(),
		VCS:         vcs,
	}, nil
}

// Close closes every durable store opened by OpenApp, in reverse order,
// attempting every close even after one fails and returning the first
// close error.
func (a *App) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	record(a.Events.Close())
	record(a.MergeQueue.Close())
	record(a.MailStore.Close())
	record(a.Sessions.Close())
	return first
}

// exitCodeFor maps an error to Overstory's exit code convention (spec.md
// §6: "0 on success, 1 for validation/hierarchy/merge failures, 2 for
// the doctor command when any check failed").
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}
