package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/session"
)

var (
	statusFollow   bool
	statusInterval float64
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	rootCmd.AddCommand(statusCmd)
}

// statusCmd shows every tracked agent session's health, in the same
// follow-mode shape as the teacher's concern status dashboard: a single
// render pass by default, or a clear-and-redraw loop under --follow.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of each tracked agent session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		if statusFollow {
			return followStatus(app)
		}
		return renderStatus(os.Stdout, app)
	},
}

func followStatus(app *App) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(&buf, app); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()

		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: ov status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func renderStatus(w io.Writer, app *App) error {
	sessions, err := app.Sessions.GetAll()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Agent Status")
	fmt.Fprintln(w, "──────────────────────────────────────")
	if len(sessions) == 0 {
		fmt.Fprintln(w, "  (no tracked agents)")
		return nil
	}

	for _, s := range sessions {
		symbol, extra := sessionDisplay(s)
		fmt.Fprintf(w, "  %s  %-20s  capability=%-11s  %s\n", symbol, s.AgentName, s.Capability, extra)
	}
	return nil
}

func sessionDisplay(s session.AgentSession) (symbol, extra string) {
	switch s.State {
	case session.StateBooting:
		return "◎", "booting since " + s.StartedAt.Format(time.RFC3339)
	case session.StateWorking:
		return "⟳", "last activity " + s.LastActivity.Format(time.RFC3339)
	case session.StateStalled:
		since := "unknown"
		if s.StalledSince != nil {
			since = s.StalledSince.Format(time.RFC3339)
		}
		return "⚠", "stalled since " + since
	case session.StateZombie:
		return "✗", "zombie"
	case session.StateCompleted:
		return "✓", "completed"
	default:
		return "◯", string(s.State)
	}
}
