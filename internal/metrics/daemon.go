package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dircrawl/internal/disk"
)

// Daemon subsystem metrics
var (
	// ErrorsTotal tracks errors outside of individual runs
	ErrorsTotal prometheus.Counter

	// FreeSpacePercent tracks free space of the filesystem holding each job root
	FreeSpacePercent *prometheus.GaugeVec

	// RootFreeBytes tracks free bytes of the filesystem holding each job root
	RootFreeBytes *prometheus.GaugeVec

	// RootTotalBytes tracks capacity of the filesystem holding each job root
	RootTotalBytes *prometheus.GaugeVec
)

func initDaemonMetrics() {
	ErrorsTotal = NewCounter(
		"dircrawl_daemon_errors_total",
		"Total number of errors encountered by the daemon.",
	)

	FreeSpacePercent = NewGaugeVec(
		"dircrawl_root_free_space_percent",
		"Free space percentage of the filesystem containing a job root.",
		[]string{"root"},
	)

	RootFreeBytes = NewGaugeVec(
		"dircrawl_root_free_bytes",
		"Free bytes of the filesystem containing a job root.",
		[]string{"root"},
	)

	RootTotalBytes = NewGaugeVec(
		"dircrawl_root_total_bytes",
		"Capacity of the filesystem containing a job root.",
		[]string{"root"},
	)
}

func registerDaemonMetrics() {
	prometheus.MustRegister(ErrorsTotal)
	prometheus.MustRegister(FreeSpacePercent)
	prometheus.MustRegister(RootFreeBytes)
	prometheus.MustRegister(RootTotalBytes)
}

// UpdateDiskMetrics publishes filesystem usage for a job root.
func UpdateDiskMetrics(root string, u *disk.Usage) {
	FreeSpacePercent.WithLabelValues(root).Set(u.FreePercent())
	RootFreeBytes.WithLabelValues(root).Set(float64(u.FreeBytes))
	RootTotalBytes.WithLabelValues(root).Set(float64(u.TotalBytes))
}
