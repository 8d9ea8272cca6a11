package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"dircrawl/internal/cleanup"
)

func printResult(w io.Writer, res *cleanup.Result) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "Job %s\n", res.Job)
	if res.DryRun {
		yellow.Fprintln(w, "Dry run: nothing was deleted")
	}

	s := res.Statistics
	fmt.Fprintf(w, "Visited %d directories, %d files (%s)\n",
		s.DirectoryCount(), s.TotalFileCount(), formatBytes(s.TotalFileSize()))

	verb := "Deleted"
	if res.DryRun {
		verb = "Would delete"
	}
	green.Fprintf(w, "%s %d files, %d directories, %s\n",
		verb, res.DeletedFiles, res.DeletedDirectories, formatBytes(res.DeletedBytes))

	if len(res.Warnings) > 0 {
		yellow.Fprintf(w, "Warnings (%d):\n", len(res.Warnings))
		for _, msg := range res.Warnings {
			yellow.Fprintf(w, "  %s\n", msg)
		}
	}

	fmt.Fprintln(w)
	if err := s.Dump(w); err != nil {
		fmt.Fprintf(w, "failed to render statistics: %v\n", err)
	}

	if res.RunID != "" {
		gray.Fprintf(w, "Run ID: %s (%s)\n", res.RunID, res.Duration().Round(time.Millisecond))
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
