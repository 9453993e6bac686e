package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ov",
	Short: "Orchestrate a fleet of long-running coding agents across git worktrees",
	Long: `Overstory orchestrates a fleet of long-running LLM coding agents working
in parallel on a single repository. Each agent runs inside an isolated git
worktree on its own branch inside a detached terminal multiplexer session;
ov spawns, monitors, messages, and merges their work back to a canonical
branch.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".overstory/config.yaml", "Path to config.yaml")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ov %s\n", Version)
	},
}
