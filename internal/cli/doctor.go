package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	name string
	run  func(app *App) error
}

var doctorChecks = []doctorCheck{
	{"git binary on PATH", func(*App) error {
		_, err := exec.LookPath("git")
		return err
	}},
	{"tmux binary on PATH", func(*App) error {
		_, err := exec.LookPath("tmux")
		return err
	}},
	{"agent CLI binary on PATH", func(app *App) error {
		cmd := app.Config.Agents.Command
		if cmd == "" {
			return fmt.Errorf("agents.command is not configured")
		}
		_, err := exec.LookPath(cmd)
		return err
	}},
	{"state directory is writable", func(app *App) error {
		probe := app.StateDir + "/.doctor-probe"
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return err
		}
		return os.Remove(probe)
	}},
	{"canonical branch resolves", func(app *App) error {
		_, err := app.VCS.HeadCommit(app.Config.Project.CanonicalBranch)
		return err
	}},
}

// doctorCmd runs a battery of environment and configuration health
// checks and exits 2 if any fail (spec.md §6 "Exit codes"). Doctor
// checks are named in spec.md §1 as an out-of-scope external
// collaborator; this is the thin adapter that invokes them against a
// loaded App.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run environment and configuration health checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ loading config: %s\n", err)
			os.Exit(2)
		}
		defer app.Close()

		failed := false
		for _, c := range doctorChecks {
			if err := c.run(app); err != nil {
				fmt.Printf("✗ %s: %s\n", c.name, err)
				failed = true
				continue
			}
			fmt.Printf("✓ %s\n", c.name)
		}
		if failed {
			os.Exit(2)
		}
		return nil
	},
}
