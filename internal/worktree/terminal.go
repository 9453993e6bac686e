package worktree

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/re-cinq/overstory/internal/errs"
)

// Multiplexer is the terminal-session contract the spawn coordinator,
// watchdog, and merge command depend on (spec.md §4.6). Grounded on the
// gastown tmux.Tmux contract referenced from
// other_examples/...refinery-manager.go.
type Multiplexer interface {
	CreateSession(name, cwd, command string, args, env []string) (pid int, err error)
	KillSession(name string) error
	ListSessions() ([]string, error)
	IsSessionAlive(name string) (bool, error)
	SendKeys(name, keys string) error
	CurrentSessionName() (string, error)
}

// TmuxMultiplexer shells out to the real `tmux` binary.
type TmuxMultiplexer struct{}

// NewTmuxMultiplexer returns a Multiplexer backed by the tmux CLI.
func NewTmuxMultiplexer() *TmuxMultiplexer { return &TmuxMultiplexer{} }

func (TmuxMultiplexer) run(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errs.Worktree(fmt.Sprintf("tmux %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out))), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateSession starts a detached tmux session running command with args,
// cwd, and an extended environment, matching the teacher-adjacent gastown
// pattern of NewSession + per-variable SetEnvironment calls.
func (t TmuxMultiplexer) CreateSession(name, cwd, command string, args, env []string) (int, error) {
	full := append([]string{"new-session", "-d", "-s", name, "-c", cwd}, command)
	full = append(full, args...)
	if _, err := t.run(full...); err != nil {
		return 0, err
	}
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if _, err := t.run("set-environment", "-t", name, parts[0], parts[1]); err != nil {
			_ = t.KillSession(name)
			return 0, err
		}
	}
	pidStr, err := t.run("list-panes", "-t", name, "-F", "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(strings.SplitN(pidStr, "\n", 2)[0]))
	if convErr != nil {
		return 0, nil
	}
	return pid, nil
}

func (t TmuxMultiplexer) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", name)
	return err
}

func (t TmuxMultiplexer) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		// tmux exits non-zero when the server isn't running; treat as empty.
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (t TmuxMultiplexer) IsSessionAlive(name string) (bool, error) {
	_, err := t.run("has-session", "-t", name)
	return err == nil, nil
}

// SendKeys sends a single logical line to the session followed by Enter.
// Multi-line sends corrupt keystrokes (spec.md §4.7 step 12) — callers
// must ensure keys contains no newline; this method does not split on one.
func (t TmuxMultiplexer) SendKeys(name, keys string) error {
	_, err := t.run("send-keys", "-t", name, keys, "Enter")
	return err
}

func (t TmuxMultiplexer) CurrentSessionName() (string, error) {
	return t.run("display-message", "-p", "#S")
}
