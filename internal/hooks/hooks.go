// Package hooks implements the thin, CLI-invoked helper functions that
// run from inside a spawned agent process or its hook subprocess
// (spec.md §4.9): priming context at session start, rendering the mail
// inbox injection block, and writing task spec files. Grounded on the
// teacher's init.go command (gitignore healing, state-directory
// bootstrap on first run).
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/re-cinq/overstory/internal/config"
	"github.com/re-cinq/overstory/internal/fileutil"
	"github.com/re-cinq/overstory/internal/mail"
	"github.com/re-cinq/overstory/internal/session"
)

// gitignoreEntries are the paths Overstory's own state must never let a
// commit accidentally pick up (spec.md §4.9 "heal state directory's
// gitignore").
var gitignoreEntries = []string{
	"*.db", "*.db-wal", "*.db-shm", "pending-nudges/", "current-run",
}

// HealGitignore ensures {stateDir}/.gitignore contains every required
// entry, appending any that are missing without disturbing custom
// entries a user may have added (spec.md §4.9 step "heal").
func HealGitignore(stateDir string) error {
	path := filepath.Join(stateDir, ".gitignore")
	existing := map[string]bool{}
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			existing[strings.TrimSpace(line)] = true
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading .gitignore: %w", err)
	}

	var missing []string
	for _, e := range gitignoreEntries {
		if !existing[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening .gitignore: %w", err)
	}
	defer f.Close()
	for _, e := range missing {
		if _, err := fmt.Fprintln(f, e); err != nil {
			return fmt.Errorf("appending .gitignore entry %q: %w", e, err)
		}
	}
	return nil
}

// PrimeContext is the assembled context block spec.md §4.9's `prime`
// helper injects at session start.
type PrimeContext struct {
	ProjectName     string
	CanonicalBranch string
	SessionBranch   string
	ManifestSummary string
	RecentMetrics   string
	KnowledgePrimer string

	// Agent-only fields (empty for the orchestrator session).
	IdentityFile    string
	ActivationHint  string
	RecoveryBlock   string
}

// Prime implements spec.md §4.9's `prime` hook. isOrchestrator selects
// between the two variants: the orchestrator session additionally
// captures its current branch to session-branch.txt; an agent session
// includes identity/activation/recovery blocks instead.
func Prime(stateDir string, isOrchestrator bool, currentBranch string, ctx PrimeContext) (string, error) {
	if err := HealGitignore(stateDir); err != nil {
		return "", err
	}

	if isOrchestrator {
		path := filepath.Join(stateDir, "session-branch.txt")
		if err := fileutil.WriteFileAtomic(path, []byte(currentBranch+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("capturing session branch: %w", err)
		}
		ctx.SessionBranch = currentBranch
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", ctx.ProjectName)
	fmt.Fprintf(&b, "Canonical branch: %s\n", ctx.CanonicalBranch)
	if ctx.SessionBranch != "" {
		fmt.Fprintf(&b, "Session branch: %s\n", ctx.SessionBranch)
	}
	if ctx.ManifestSummary != "" {
		fmt.Fprintf(&b, "\nAgent manifest:\n%s\n", ctx.ManifestSummary)
	}
	if ctx.RecentMetrics != "" {
		fmt.Fprintf(&b, "\nRecent session metrics:\n%s\n", ctx.RecentMetrics)
	}
	if ctx.KnowledgePrimer != "" {
		fmt.Fprintf(&b, "\nKnowledge primer:\n%s\n", ctx.KnowledgePrimer)
	}

	if !isOrchestrator {
		if ctx.IdentityFile != "" {
			fmt.Fprintf(&b, "\nIdentity:\n%s\n", ctx.IdentityFile)
		}
		if ctx.ActivationHint != "" {
			fmt.Fprintf(&b, "\nActivation: %s\n", ctx.ActivationHint)
		}
		if ctx.RecoveryBlock != "" {
			fmt.Fprintf(&b, "\nSession recovery:\n%s\n", ctx.RecoveryBlock)
		}
	}

	return b.String(), nil
}

// checkState is the per-project debounce tracker for mail check --inject
// (spec.md §4.9: "skip if the last check by this agent was within the
// debounce window").
type checkState map[string]int64 // agentName -> last-check time, epoch milliseconds

// CheckDebouncer tracks per-agent last-check times in a JSON file so
// repeated `mail check --inject` invocations within the debounce window
// produce no output.
type CheckDebouncer struct {
	path   string
	window time.Duration
}

// NewCheckDebouncer returns a debouncer backed by path with the given
// window. A zero window disables debouncing.
func NewCheckDebouncer(path string, window time.Duration) *CheckDebouncer {
	return &CheckDebouncer{path: path, window: window}
}

// ShouldSkip reports whether agent checked within the debounce window,
// and if not, records now as its new last-check time.
func (d *CheckDebouncer) ShouldSkip(agent string, now time.Time) (bool, error) {
	if d.window <= 0 {
		return false, nil
	}
	state, err := d.load()
	if err != nil {
		return false, err
	}
	if last, ok := state[agent]; ok && now.Sub(time.UnixMilli(last)) < d.window {
		return true, nil
	}
	state[agent] = now.UnixMilli()
	return false, d.save(state)
}

func (d *CheckDebouncer) load() (checkState, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return checkState{}, nil
	}
	if err != nil {
		return nil, err
	}
	state := checkState{}
	if err := json.Unmarshal(data, &state); err != nil {
		// A malformed state file is treated as empty.
		return checkState{}, nil
	}
	return state, nil
}

func (d *CheckDebouncer) save(state checkState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(d.path, data, 0o644)
}

// MailCheckInject implements spec.md §4.9's `mail check --inject`: render
// the nudge-prefixed inbox injection block, honoring the debounce window.
func MailCheckInject(client *mail.Client, debouncer *CheckDebouncer, agent string, now time.Time) (string, error) {
	if debouncer != nil {
		skip, err := debouncer.ShouldSkip(agent, now)
		if err != nil {
			return "", fmt.Errorf("checking debounce state: %w", err)
		}
		if skip {
			return "", nil
		}
	}
	return client.CheckInject(agent)
}

// SpecWrite implements spec.md §4.9's `spec write <taskId> --body ...`:
// atomically writes {stateDir}/specs/<taskId>.md, optionally prefixed by
// an HTML-comment attribution header.
func SpecWrite(stateDir, taskID, body, attributedTo string) (string, error) {
	var content strings.Builder
	if attributedTo != "" {
		fmt.Fprintf(&content, "<!-- written by %s -->\n", attributedTo)
	}
	content.WriteString(body)

	path := filepath.Join(stateDir, "specs", taskID+".md")
	if err := fileutil.WriteFileAtomic(path, []byte(content.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing spec: %w", err)
	}
	return path, nil
}

// ActivationHint formats the activation-hint line for PrimeContext when
// the agent is bound to an open task (spec.md §4.9).
func ActivationHint(sess session.AgentSession) string {
	if sess.TaskID == "" {
		return ""
	}
	return fmt.Sprintf("bound to task %s (capability %s, depth %d)", sess.TaskID, sess.Capability, sess.Depth)
}

// NudgeDirName is the directory name under a state directory holding
// pending-nudge marker files (spec.md §4.8), shared between the mail and
// hooks packages so both agree on the layout without hooks importing
// mail's internals.
const NudgeDirName = "pending-nudges"

// StateConfig bundles the pieces of config needed to locate a project's
// state paths from hook code, avoiding every hook function taking five
// separate string arguments.
type StateConfig struct {
	ProjectRoot string
	StateDir    string
}

// NewStateConfig resolves a StateConfig from cfg and the resolved project
// root.
func NewStateConfig(cfg *config.Config, projectRoot string) StateConfig {
	return StateConfig{ProjectRoot: projectRoot, StateDir: config.StateDir(projectRoot)}
}
