package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/lifecycle"
)

var checkpointSaveArgs struct {
	task          string
	summary       string
	files         []string
	pendingWork   string
	branch        string
	domains       []string
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointSaveCmd, checkpointShowCmd, checkpointClearCmd)
	checkpointCmd.AddCommand(handoffCmd)
	handoffCmd.AddCommand(handoffRecordCmd, handoffCompleteCmd, handoffListCmd)

	checkpointSaveCmd.Flags().StringVar(&checkpointSaveArgs.task, "task", "", "Task id")
	checkpointSaveCmd.Flags().StringVar(&checkpointSaveArgs.summary, "summary", "", "Progress summary")
	checkpointSaveCmd.Flags().StringSliceVar(&checkpointSaveArgs.files, "files", nil, "Modified files")
	checkpointSaveCmd.Flags().StringVar(&checkpointSaveArgs.pendingWork, "pending", "", "Pending work description")
	checkpointSaveCmd.Flags().StringVar(&checkpointSaveArgs.branch, "branch", "", "Current branch")
	checkpointSaveCmd.Flags().StringSliceVar(&checkpointSaveArgs.domains, "domains", nil, "Knowledge-store domain tags")

	handoffRecordCmd.Flags().StringVar(&handoffRecordArgs.fromSession, "from-session", "", "Source session id (required)")
	handoffRecordCmd.Flags().StringVar(&handoffRecordArgs.task, "task", "", "Task id")
	handoffRecordCmd.Flags().StringVar(&handoffRecordArgs.reason, "reason", "", "Reason for the handoff")
	_ = handoffRecordCmd.MarkFlagRequired("from-session")

	handoffCompleteCmd.Flags().StringVar(&handoffCompleteArgs.toSession, "to-session", "", "Recipient session id (required)")
	_ = handoffCompleteCmd.MarkFlagRequired("to-session")
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Save, inspect, and clear an agent's resumable checkpoint",
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save <agent>",
	Short: "Save a checkpoint for agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		store := lifecycle.NewStore(app.StateDir)
		return store.SaveCheckpoint(lifecycle.Checkpoint{
			AgentName:        args[0],
			TaskID:           checkpointSaveArgs.task,
			ProgressSummary:  checkpointSaveArgs.summary,
			ModifiedFiles:    checkpointSaveArgs.files,
			PendingWork:      checkpointSaveArgs.pendingWork,
			CurrentBranch:    checkpointSaveArgs.branch,
			KnowledgeDomains: checkpointSaveArgs.domains,
			CapturedAt:       time.Now(),
		})
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Print an agent's checkpoint as JSON, if any",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		store := lifecycle.NewStore(app.StateDir)
		cp, ok, err := store.LoadCheckpoint(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no checkpoint")
			return nil
		}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear <agent>",
	Short: "Remove an agent's checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		return lifecycle.NewStore(app.StateDir).ClearCheckpoint(args[0])
	},
}

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Record and complete cross-session handoffs",
}

var handoffRecordArgs struct {
	fromSession string
	task        string
	reason      string
}

var handoffRecordCmd = &cobra.Command{
	Use:   "record <agent>",
	Short: "Record a pending handoff for agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		store := lifecycle.NewStore(app.StateDir)
		return store.RecordHandoff(lifecycle.Handoff{
			FromSession: handoffRecordArgs.fromSession,
			AgentName:   args[0],
			TaskID:      handoffRecordArgs.task,
			Reason:      handoffRecordArgs.reason,
			CreatedAt:   time.Now(),
		})
	},
}

var handoffCompleteArgs struct {
	toSession string
}

var handoffCompleteCmd = &cobra.Command{
	Use:   "complete <agent>",
	Short: "Mark the most recent pending handoff for agent as picked up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		return lifecycle.NewStore(app.StateDir).CompleteHandoff(args[0], handoffCompleteArgs.toSession, time.Now())
	},
}

var handoffListCmd = &cobra.Command{
	Use:   "list <agent>",
	Short: "List an agent's handoff history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		history, err := lifecycle.NewStore(app.StateDir).Handoffs(args[0])
		if err != nil {
			return err
		}
		for _, h := range history {
			status := "pending"
			if h.IsComplete() {
				status = "complete -> " + h.ToSession
			}
			fmt.Printf("%s: %s (%s) [%s]\n", h.CreatedAt.Format(time.RFC3339), h.Reason, status, h.FromSession)
		}
		return nil
	},
}
