package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dircrawl/internal/config"
	"dircrawl/internal/database"
)

// NewHistoryCommand creates the 'dircrawl history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the run history database",
		Long: `Query the runs recorded by dircrawl. The database is taken from --db,
else from the configuration file, else the default location.`,
	}

	cmd.PersistentFlags().Bool("json", false, "Output as JSON")

	cmd.AddCommand(newHistoryRunsCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryDBCommand())

	return cmd
}

func newHistoryRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, _ := cmd.Flags().GetString("job")
			limit, _ := cmd.Flags().GetInt("limit")
			return withHistory(cmd, func(db *database.RunDB, w io.Writer, asJSON bool) error {
				runs, err := db.GetRecentRuns(job, limit)
				if err != nil {
					return fmt.Errorf("get recent runs: %w", err)
				}
				if asJSON {
					return writeJSON(w, runs)
				}
				printRuns(w, runs)
				return nil
			})
		},
	}

	cmd.Flags().String("job", "", "Only runs of this job")
	cmd.Flags().Int("limit", 20, "Number of runs to show")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			return withHistory(cmd, func(db *database.RunDB, w io.Writer, asJSON bool) error {
				return showRun(db, w, args[0], action, asJSON)
			})
		},
	}

	cmd.Flags().String("action", "", "Only entries with this action (e.g. Deleted, Skipped)")

	return cmd
}

func newHistoryStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return withHistory(cmd, func(db *database.RunDB, w io.Writer, asJSON bool) error {
				stats, err := db.GetRunStats(days)
				if err != nil {
					return fmt.Errorf("get run stats: %w", err)
				}
				if asJSON {
					return writeJSON(w, stats)
				}
				printRunStats(w, stats, days)
				return nil
			})
		},
	}

	cmd.Flags().Int("days", 30, "Number of days to summarize")

	return cmd
}

func newHistoryDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Show history database size, optionally compacting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vacuum, _ := cmd.Flags().GetBool("vacuum")
			return withHistory(cmd, func(db *database.RunDB, w io.Writer, asJSON bool) error {
				if vacuum {
					if err := db.Vacuum(); err != nil {
						return fmt.Errorf("vacuum: %w", err)
					}
				}
				s, err := db.GetDatabaseStats()
				if err != nil {
					return fmt.Errorf("get database stats: %w", err)
				}
				if asJSON {
					return writeJSON(w, s)
				}
				fmt.Fprintf(w, "Runs:     %d\n", s.Runs)
				fmt.Fprintf(w, "Entries:  %d\n", s.Entries)
				fmt.Fprintf(w, "Size:     %s\n", formatBytes(s.SizeBytes))
				if s.Runs > 0 {
					fmt.Fprintf(w, "Oldest:   %s\n", s.OldestRun.Local().Format("2006-01-02 15:04:05"))
					fmt.Fprintf(w, "Newest:   %s\n", s.NewestRun.Local().Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("vacuum", false, "Compact the database first")

	return cmd
}

// historyPath resolves the database the history commands read.
func historyPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, nil
	}
	cfg, err := optionalConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.DatabasePath, nil
}

// optionalConfig loads --config, falling back to the defaults when the
// default config file does not exist.
func optionalConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		return config.Default(), nil
	default:
		return nil, &ConfigError{Err: err}
	}
}

func withHistory(cmd *cobra.Command, fn func(db *database.RunDB, w io.Writer, asJSON bool) error) error {
	path, err := historyPath(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history database at %s: %w", path, err)
	}

	db, err := database.NewRunDB(path)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer db.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	return fn(db, cmd.OutOrStdout(), asJSON)
}

func showRun(db *database.RunDB, w io.Writer, id, action string, asJSON bool) error {
	run, err := db.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run %s: %w", id, err)
	}
	entries, err := db.GetEntries(id, action)
	if err != nil {
		return fmt.Errorf("get entries: %w", err)
	}

	if asJSON {
		return writeJSON(w, struct {
			Run     *database.Run    `json:"run"`
			Entries []database.Entry `json:"entries"`
		}{run, entries})
	}

	counts, err := db.GetActionCounts(id)
	if err != nil {
		return fmt.Errorf("get action counts: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "Job:       %s (%s)\n", run.Job, run.Mode)
	fmt.Fprintf(w, "Root:      %s\n", run.Root)
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration:  %s\n", run.Duration())
	fmt.Fprintf(w, "Status:    %s\n", run.Status)
	fmt.Fprintf(w, "Dry run:   %t\n", run.DryRun)
	fmt.Fprintf(w, "Visited:   %d directories, %d files (%s)\n", run.Directories, run.Files, formatBytes(run.TotalBytes))
	fmt.Fprintf(w, "Deleted:   %d files, %d directories (%s)\n", run.DeletedFiles, run.DeletedDirectories, formatBytes(run.DeletedBytes))
	if run.Error != "" {
		red.Fprintf(w, "Error:     %s\n", run.Error)
	}
	for _, msg := range run.Warnings {
		yellow.Fprintf(w, "Warning:   %s\n", msg)
	}

	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	fmt.Fprintln(w, "\nBy Action:")
	for _, a := range actions {
		fmt.Fprintf(w, "  %-15s %d\n", a, counts[a])
	}

	fmt.Fprintln(w)
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Type\tAction\tSize\tPath")
	_, _ = fmt.Fprintln(tw, "----\t------\t----\t----")
	for _, e := range entries {
		size := "-"
		if e.Size != nil {
			size = formatBytes(*e.Size)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ObjectType, e.Action, size, e.VirtualPath)
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []database.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tStarted\tJob\tMode\tStatus\tDry\tFiles\tDirs\tFreed\tWarnings")
	_, _ = fmt.Fprintln(tw, "--\t-------\t---\t----\t------\t---\t-----\t----\t-----\t--------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%d\t%d\t%s\t%d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Job, r.Mode, r.Status,
			r.DryRun, r.DeletedFiles, r.DeletedDirectories, formatBytes(r.DeletedBytes), r.WarningCount)
	}
	_ = tw.Flush()
}

func printRunStats(w io.Writer, s *database.RunStats, days int) {
	fmt.Fprintf(w, "=== Run Statistics (last %d days) ===\n\n", days)
	fmt.Fprintf(w, "Runs:             %d\n", s.Runs)
	fmt.Fprintf(w, "Failed Runs:      %d\n", s.FailedRuns)
	fmt.Fprintf(w, "Dry Runs:         %d\n", s.DryRuns)
	fmt.Fprintf(w, "Deleted Files:    %d\n", s.DeletedFiles)
	fmt.Fprintf(w, "Deleted Dirs:     %d\n", s.DeletedDirectories)
	fmt.Fprintf(w, "Space Freed:      %s\n", formatBytes(s.DeletedBytes))
	fmt.Fprintf(w, "Warnings:         %d\n", s.Warnings)

	if len(s.ByJob) > 0 {
		jobs := make([]string, 0, len(s.ByJob))
		for j := range s.ByJob {
			jobs = append(jobs, j)
		}
		sort.Strings(jobs)
		fmt.Fprintln(w, "\nBy Job:")
		for _, j := range jobs {
			fmt.Fprintf(w, "  %-15s %d\n", j, s.ByJob[j])
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
