// Package cli implements the tasksync command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Sync a local task tracker with external ticket systems",
	Long: `tasksync keeps a local task database aligned with external ticket
systems (GitHub, GitLab, Jira, HubSpot, Notion, Peakflo) through a uniform
plugin contract.

Quick start:
  tasksync sources list       Show configured sources
  tasksync sync               Sync every configured source
  tasksync sync my-jira       Sync one source
  tasksync tasks list         Show imported tasks`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tasksync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSourcesCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newActionCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newReassignCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initLogging routes slog to stderr so stdout stays machine-readable.
func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
