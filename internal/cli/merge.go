package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/merge"
)

var mergeArgs struct {
	branch   string
	jsonOut  bool
	taskID   string
	agent    string
	files    []string
}

func init() {
	mergeCmd.Flags().StringVar(&mergeArgs.branch, "branch", "", "Branch name to merge (required)")
	mergeCmd.Flags().BoolVar(&mergeArgs.jsonOut, "json", false, "Print the result as JSON")
	mergeCmd.Flags().StringVar(&mergeArgs.taskID, "task", "", "Task id, used when the branch isn't already queued")
	mergeCmd.Flags().StringVar(&mergeArgs.agent, "agent", "", "Agent name, used when the branch isn't already queued")
	mergeCmd.Flags().StringSliceVar(&mergeArgs.files, "files", nil, "Modified files, used when the branch isn't already queued")
	_ = mergeCmd.MarkFlagRequired("branch")
	rootCmd.AddCommand(mergeCmd, mergeQueueCmd)
	mergeQueueCmd.AddCommand(mergeQueueListCmd)
}

// mergeCmd implements `ov merge --branch <name> --json`: resolve a single
// branch through the tiered resolver, enqueueing it first if it isn't
// already in the merge queue, and update the queue entry's final status.
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a branch into the canonical branch via the tiered resolver",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		entry, err := findOrEnqueue(app, mergeArgs.branch, mergeArgs.taskID, mergeArgs.agent, mergeArgs.files)
		if err != nil {
			return err
		}

		if updErr := app.MergeQueue.UpdateStatus(entry.BranchName, merge.StatusMerging, nil); updErr != nil {
			return updErr
		}

		resolver := merge.NewResolver(app.VCS, app.Knowledge, app.CLI, app.Config.Project.CanonicalBranch, app.ProjectRoot, merge.ResolverConfig{
			AIResolveEnabled: app.Config.Merge.AIResolveEnabled,
			ReimagineEnabled: app.Config.Merge.ReimagineEnabled,
			AICommand:        app.Config.Agents.Command,
			AIArgs:           app.Config.Agents.Args,
		})

		result, resolveErr := resolver.Resolve(context.Background(), entry)
		if resolveErr != nil {
			return resolveErr
		}

		finalStatus := merge.StatusMerged
		if !result.Success {
			finalStatus = merge.StatusConflict
			if result.Tier == merge.TierReimagine {
				finalStatus = merge.StatusFailed
			}
		}
		tier := result.Tier
		if updErr := app.MergeQueue.UpdateStatus(entry.BranchName, finalStatus, &tier); updErr != nil {
			return updErr
		}

		return printMergeResult(result)
	},
}

func findOrEnqueue(app *App, branch, taskID, agent string, files []string) (merge.Entry, error) {
	pending, err := app.MergeQueue.List(merge.StatusPending)
	if err != nil {
		return merge.Entry{}, err
	}
	for _, e := range pending {
		if e.BranchName == branch {
			return e, nil
		}
	}
	return app.MergeQueue.Enqueue(merge.EnqueueRequest{
		BranchName:    branch,
		TaskID:        taskID,
		AgentName:     agent,
		FilesModified: files,
	})
}

func printMergeResult(result merge.Result) error {
	if mergeArgs.jsonOut {
		data, err := json.Marshal(map[string]any{
			"success":       result.Success,
			"tier":          result.Tier,
			"conflictFiles": result.ConflictFiles,
			"errorMessage":  result.ErrorMessage,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if result.Success {
		fmt.Printf("merged %s via tier %s\n", result.Entry.BranchName, result.Tier)
	} else {
		fmt.Printf("failed to merge %s at tier %s: %s\n", result.Entry.BranchName, result.Tier, result.ErrorMessage)
	}
	return nil
}

var mergeQueueCmd = &cobra.Command{
	Use:   "merge-queue",
	Short: "Inspect the merge queue directly",
}

var mergeQueueListArgs struct {
	status string
}

var mergeQueueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List merge queue entries, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.MergeQueue.List(merge.Status(mergeQueueListArgs.status))
		if err != nil {
			return err
		}
		for _, e := range entries {
			tier := "-"
			if e.ResolvedTier != nil {
				tier = string(*e.ResolvedTier)
			}
			fmt.Printf("#%d %s task=%s agent=%s status=%s tier=%s\n", e.ID, e.BranchName, e.TaskID, e.AgentName, e.Status, tier)
		}
		return nil
	},
}

func init() {
	mergeQueueListCmd.Flags().StringVar(&mergeQueueListArgs.status, "status", "", "Filter by status")
}
