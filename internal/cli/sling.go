package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/session"
	"github.com/re-cinq/overstory/internal/spawn"
)

var slingReq struct {
	agent      string
	capability string
	task       string
	parent     string
	depth      int
	spec       string
	force      bool
	runID      string
}

func init() {
	slingCmd.Flags().StringVar(&slingReq.agent, "agent", "", "Name of the new agent (required)")
	slingCmd.Flags().StringVar(&slingReq.capability, "capability", string(session.CapabilityBuilder), "Agent capability")
	slingCmd.Flags().StringVar(&slingReq.task, "task", "", "Task id the agent is bound to (required)")
	slingCmd.Flags().StringVar(&slingReq.parent, "parent", "", "Parent agent name, if any")
	slingCmd.Flags().IntVar(&slingReq.depth, "depth", 0, "Hierarchy depth of the new agent")
	slingCmd.Flags().StringVar(&slingReq.spec, "spec", "", "Path to a task spec file to mail to the new agent")
	slingCmd.Flags().BoolVar(&slingReq.force, "force", false, "Allow an orphan, non-lead agent without a parent")
	slingCmd.Flags().StringVar(&slingReq.runID, "run", "", "Run id this spawn belongs to")
	_ = slingCmd.MarkFlagRequired("agent")
	_ = slingCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(slingCmd)
}

var slingCmd = &cobra.Command{
	Use:   "sling",
	Short: "Spawn a new agent into its own worktree and terminal session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		coordinator := spawn.NewCoordinator(app.Sessions, app.Worktrees, app.Multiplexer, app.Mail, app.Events, app.Config, app.Config.Project.Name, app.ProjectRoot)

		result, err := coordinator.Sling(spawn.Request{
			AgentName:       slingReq.agent,
			Capability:      session.Capability(slingReq.capability),
			TaskID:          slingReq.task,
			ParentAgentName: slingReq.parent,
			Depth:           slingReq.depth,
			SpecPath:        slingReq.spec,
			Force:           slingReq.force,
			RunID:           slingReq.runID,
		})
		if err != nil {
			return err
		}

		fmt.Printf("spawned %s (capability=%s, branch=%s, worktree=%s)\n",
			result.Session.AgentName, result.Session.Capability, result.Session.BranchName, result.Session.WorktreePath)
		if len(result.Domains) > 0 {
			fmt.Printf("inferred domains: %v\n", result.Domains)
		}
		return nil
	},
}
