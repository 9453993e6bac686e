package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/hooks"
	"github.com/re-cinq/overstory/internal/lifecycle"
)

var primeArgs struct {
	orchestrator bool
	agent        string
	branch       string
	manifest     string
	metrics      string
	primer       string
}

func init() {
	primeCmd.Flags().BoolVar(&primeArgs.orchestrator, "orchestrator", false, "Prime as the orchestrator session")
	primeCmd.Flags().StringVar(&primeArgs.agent, "agent", "", "Agent name (required for a non-orchestrator session)")
	primeCmd.Flags().StringVar(&primeArgs.branch, "branch", "", "Current branch (required for the orchestrator)")
	primeCmd.Flags().StringVar(&primeArgs.manifest, "manifest-summary", "", "Agent manifest summary text")
	primeCmd.Flags().StringVar(&primeArgs.metrics, "recent-metrics", "", "Recent session metrics text")
	primeCmd.Flags().StringVar(&primeArgs.primer, "knowledge-primer", "", "Knowledge-domain primer text")
	rootCmd.AddCommand(primeCmd)

	specWriteCmd.Flags().StringVar(&specWriteArgs.body, "body", "", "Spec body")
	specWriteCmd.Flags().StringVar(&specWriteArgs.attributedTo, "attributed-to", "", "Agent name to attribute this spec to")
	rootCmd.AddCommand(specCmd)
	specCmd.AddCommand(specWriteCmd)
}

// primeCmd implements spec.md §4.9's `prime` hook: session-start context
// assembly, including a session-recovery block sourced from
// internal/lifecycle when the agent has a prior checkpoint.
var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Render the session-start context block",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := hooks.PrimeContext{
			ProjectName:     app.Config.Project.Name,
			CanonicalBranch: app.Config.Project.CanonicalBranch,
			ManifestSummary: primeArgs.manifest,
			RecentMetrics:   primeArgs.metrics,
			KnowledgePrimer: primeArgs.primer,
		}

		if !primeArgs.orchestrator {
			if primeArgs.agent == "" {
				return fmt.Errorf("--agent is required for a non-orchestrator prime")
			}
			sess, err := app.Sessions.GetByName(primeArgs.agent)
			if err == nil && sess != nil {
				ctx.ActivationHint = hooks.ActivationHint(*sess)
			}

			recovery := lifecycle.NewRecoveryManager(lifecycle.NewStore(app.StateDir), 0)
			if block, ok, recErr := recovery.Recover(primeArgs.agent, time.Now()); recErr == nil && ok {
				ctx.RecoveryBlock = block
			}
		}

		out, err := hooks.Prime(app.StateDir, primeArgs.orchestrator, primeArgs.branch, ctx)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Read or write task specification files",
}

var specWriteArgs struct {
	body         string
	attributedTo string
}

var specWriteCmd = &cobra.Command{
	Use:   "write <task-id>",
	Short: "Write {stateDir}/specs/<task-id>.md",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		path, err := hooks.SpecWrite(app.StateDir, args[0], specWriteArgs.body, specWriteArgs.attributedTo)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
