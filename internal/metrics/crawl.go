package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Crawl subsystem metrics
var (
	// NodesVisitedTotal counts directories and files logged by crawls
	NodesVisitedTotal *prometheus.CounterVec

	// DeletionsTotal counts directories and files deleted (or that a dry run
	// would have deleted)
	DeletionsTotal *prometheus.CounterVec

	// BytesDeletedTotal sums the size of deleted files
	BytesDeletedTotal *prometheus.CounterVec

	// WarningsTotal counts hook requests the crawler refused
	WarningsTotal *prometheus.CounterVec

	// RunsTotal counts finished runs by outcome
	RunsTotal *prometheus.CounterVec

	// RunDuration tracks how long runs take
	RunDuration *prometheus.HistogramVec

	// LastRunTimestamp records when a job last finished
	LastRunTimestamp *prometheus.GaugeVec
)

func initCrawlMetrics() {
	NodesVisitedTotal = NewCounterVec(
		"dircrawl_nodes_visited_total",
		"Directories and files visited by crawls.",
		[]string{"job", "type"},
	)

	DeletionsTotal = NewCounterVec(
		"dircrawl_deletions_total",
		"Directories and files deleted by crawls.",
		[]string{"job", "type", "dry_run"},
	)

	BytesDeletedTotal = NewCounterVec(
		"dircrawl_bytes_deleted_total",
		"Total size of files deleted by crawls.",
		[]string{"job", "dry_run"},
	)

	WarningsTotal = NewCounterVec(
		"dircrawl_warnings_total",
		"Hook requests refused by the crawler.",
		[]string{"job"},
	)

	RunsTotal = NewCounterVec(
		"dircrawl_runs_total",
		"Finished crawl runs by status.",
		[]string{"job", "status"},
	)

	RunDuration = NewDurationHistogramVec(
		"dircrawl_run_duration_seconds",
		"Duration of crawl runs in seconds.",
		[]string{"job"},
	)

	LastRunTimestamp = NewGaugeVec(
		"dircrawl_last_run_timestamp_seconds",
		"Unix timestamp of the last finished run.",
		[]string{"job"},
	)
}

func registerCrawlMetrics() {
	prometheus.MustRegister(NodesVisitedTotal)
	prometheus.MustRegister(DeletionsTotal)
	prometheus.MustRegister(BytesDeletedTotal)
	prometheus.MustRegister(WarningsTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(LastRunTimestamp)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RecordNode counts one visited node; typ is "Directory" or "File".
func RecordNode(job, typ string) {
	NodesVisitedTotal.WithLabelValues(job, typ).Inc()
}

// RecordDeletion counts one deleted node and, for files, its size.
func RecordDeletion(job, typ string, size int64, dryRun bool) {
	DeletionsTotal.WithLabelValues(job, typ, boolLabel(dryRun)).Inc()
	if size > 0 {
		BytesDeletedTotal.WithLabelValues(job, boolLabel(dryRun)).Add(float64(size))
	}
}

func RecordWarning(job string) {
	WarningsTotal.WithLabelValues(job).Inc()
}

// RecordRun records a finished run.
func RecordRun(job, status string, duration time.Duration, finished time.Time) {
	RunsTotal.WithLabelValues(job, status).Inc()
	RunDuration.WithLabelValues(job).Observe(duration.Seconds())
	LastRunTimestamp.WithLabelValues(job).Set(float64(finished.Unix()))
}
