package cmd

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/dircrawl/config.yaml"

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates the root dircrawl command
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dircrawl",
		Short: "Depth-first directory crawler with scheduled cleanup jobs",
		Long: `dircrawl walks directory trees depth-first and deletes what its jobs
match: directories by name, directories and files by search pattern, files by
age, or everything below a root.

Jobs come from a YAML configuration file and run once or on an interval.
Every run is recorded in a history database that the history command queries.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ConfigError{Err: err}
	})

	cmd.PersistentFlags().String("config", defaultConfigPath, "Path to configuration file")
	cmd.PersistentFlags().Bool("dry-run", false, "Report what would be deleted without deleting anything")
	cmd.PersistentFlags().String("db", "", "History database path (overrides the configuration)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewHuntCommand())
	cmd.AddCommand(NewPurgeCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}
