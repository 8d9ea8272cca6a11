package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"dircrawl/internal/cleanup"
	"dircrawl/internal/config"
	"dircrawl/internal/logging"
)

// NewHuntCommand creates the 'dircrawl hunt' command
func NewHuntCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hunt <root>",
		Short: "Delete every directory below root with one of the given names",
		Long: `Walk root looking only at directories and delete, with all their
contents, the ones whose name matches a --name. Matched directories are not
searched further.

  dircrawl hunt ~/src --name node_modules --name .venv --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, _ := cmd.Flags().GetStringSlice("name")
			return runAdHoc(cmd, config.Job{
				Name:           "hunt",
				Root:           args[0],
				Mode:           config.ModeHunt,
				DirectoryNames: names,
			})
		},
	}

	cmd.Flags().StringSliceP("name", "n", nil, "Directory name to delete (repeatable)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// NewPurgeCommand creates the 'dircrawl purge' command
func NewPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <root>",
		Short: "Delete everything below root and keep root itself",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdHoc(cmd, config.Job{
				Name: "purge",
				Root: args[0],
				Mode: config.ModePurge,
			})
		},
	}

	return cmd
}

// runAdHoc runs a job built from the command line. It takes no job lock and
// records history only when --db is given.
func runAdHoc(cmd *cobra.Command, job config.Job) error {
	root, err := filepath.Abs(job.Root)
	if err != nil {
		return &ConfigError{Err: err}
	}
	job.Root = root
	if err := job.Validate(); err != nil {
		return &ConfigError{Err: err}
	}

	cfg := config.Default()
	cfg.LockDir = ""
	cfg.DatabasePath, _ = cmd.Flags().GetString("db")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	logger := logging.NewConsole(cmd.ErrOrStderr())
	db, err := openRunDB(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeRunDB(db, logger)

	res, err := cleanup.NewRunner(logger, cfg, dryRun, db).RunJob(cmd.Context(), job)
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	return err
}
