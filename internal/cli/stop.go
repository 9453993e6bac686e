package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/session"
)

var stopArgs struct {
	keepWorktree bool
}

func init() {
	stopCmd.Flags().BoolVar(&stopArgs.keepWorktree, "keep-worktree", false, "Leave the agent's worktree and branch in place")
	rootCmd.AddCommand(stopCmd, cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanArgs.keepWorktree, "keep-worktree", false, "Leave agent worktrees and branches in place")
}

// stopCmd transitions one agent's session to a terminal state, kills its
// terminal session, and removes its worktree, mirroring "destroyed by
// ... the stop command (per-agent)" from spec.md §3's Lifecycle note.
var stopCmd = &cobra.Command{
	Use:   "stop <agent>",
	Short: "Stop one agent: terminate its session and tear down its worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		agent := args[0]
		sess, err := app.Sessions.GetByName(agent)
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("no session named %q", agent)
		}

		if killErr := app.Multiplexer.KillSession(sess.TmuxSession); killErr != nil {
			fmt.Printf("warning: killing terminal session: %s\n", killErr)
		}
		if err := app.Sessions.UpdateState(agent, session.StateCompleted); err != nil {
			return err
		}
		if !stopArgs.keepWorktree {
			if err := app.Worktrees.Remove(agent); err != nil {
				fmt.Printf("warning: removing worktree: %s\n", err)
			}
		}
		fmt.Printf("stopped %s\n", agent)
		return nil
	},
}

var cleanArgs struct {
	keepWorktree bool
}

// cleanCmd bulk-destroys every completed/zombie session's remaining
// worktree and terminal session, mirroring "destroyed by the clean
// subsystem (bulk)" from spec.md §3's Lifecycle note.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Tear down worktrees and terminal sessions for every terminal-state agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		all, err := app.Sessions.GetAll()
		if err != nil {
			return err
		}

		cleaned := 0
		for _, sess := range all {
			if !sess.State.IsTerminal() {
				continue
			}
			_ = app.Multiplexer.KillSession(sess.TmuxSession)
			if !cleanArgs.keepWorktree {
				_ = app.Worktrees.Remove(sess.AgentName)
			}
			cleaned++
		}
		fmt.Printf("cleaned %d agent(s)\n", cleaned)
		return nil
	},
}
