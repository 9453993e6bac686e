package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/event"
)

var traceArgs struct {
	agent string
	run   string
	limit int
}

func init() {
	traceCmd.Flags().StringVar(&traceArgs.agent, "agent", "", "Restrict to one agent's events")
	traceCmd.Flags().StringVar(&traceArgs.run, "run", "", "Restrict to one run's events")
	traceCmd.Flags().IntVar(&traceArgs.limit, "limit", 200, "Maximum events to return")
	feedCmd.Flags().StringVar(&traceArgs.agent, "agent", "", "Restrict to one agent's events")
	feedCmd.Flags().StringVar(&traceArgs.run, "run", "", "Restrict to one run's events")
	rootCmd.AddCommand(traceCmd, feedCmd)
}

// traceCmd implements an ad-hoc, open-on-entry-close-on-exit query over
// the event log (spec.md §5 "Shared-resource policy": "Ad-hoc commands
// (trace, metrics) open on entry, close on exit").
var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Print recorded events, optionally scoped to an agent or run",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		events, err := queryEvents(app, traceArgs.agent, traceArgs.run, event.Filter{Limit: traceArgs.limit})
		if err != nil {
			return err
		}
		printEvents(events)
		return nil
	},
}

// feedCmd implements the follow-mode event feed (spec.md §5
// "Cancellation": "dashboard, follow-feed, watchdog loops ... honor a
// single interrupt signal"). It polls with a growing SinceID cursor so
// no event is printed twice.
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Follow new events as they are recorded",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		var sinceID int64
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			events, err := queryEvents(app, traceArgs.agent, traceArgs.run, event.Filter{SinceID: sinceID})
			if err != nil {
				return err
			}
			printEvents(events)
			if len(events) > 0 {
				sinceID = events[len(events)-1].ID
			}

			select {
			case <-sigCh:
				return nil
			case <-ticker.C:
			}
		}
	},
}

func queryEvents(app *App, agent, run string, f event.Filter) ([]event.StoredEvent, error) {
	switch {
	case agent != "":
		return app.Events.GetByAgent(agent, f)
	case run != "":
		return app.Events.GetByRun(run, f)
	default:
		return app.Events.GetTimeline(f)
	}
}

func printEvents(events []event.StoredEvent) {
	for _, e := range events {
		tool := ""
		if e.ToolName != nil {
			tool = " tool=" + *e.ToolName
		}
		fmt.Printf("[%s] %s %s/%s%s\n", e.CreatedAt.Format(time.RFC3339), e.AgentName, e.Type, e.Level, tool)
	}
}
