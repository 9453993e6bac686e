package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/event"
	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/watchdog"
)

func init() {
	rootCmd.AddCommand(watchdogCmd)
	watchdogCmd.AddCommand(watchdogRunCmd, watchdogCheckCmd)
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Evaluate agent session health and drive state transitions",
}

func newWatchdog(app *App) *watchdog.Watchdog {
	w := watchdog.New(app.Sessions, app.Multiplexer, app.Config.Watchdog)
	w.OnTransition = func(sess session.AgentSession, from, to session.State) {
		fmt.Printf("%s: %s -> %s\n", sess.AgentName, from, to)
		_, _ = app.Events.Insert(event.StoredEvent{
			AgentName: sess.AgentName,
			Type:      event.TypeCustom,
			Level:     event.LevelInfo,
			Data:      fmt.Sprintf(`{"from":%q,"to":%q}`, from, to),
		})
	}
	return w
}

var watchdogRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watchdog loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nwatchdog stopping...")
			cancel()
		}()

		return newWatchdog(app).Run(ctx)
	},
}

var watchdogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single watchdog evaluation pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		return newWatchdog(app).EvaluateOnce()
	},
}
