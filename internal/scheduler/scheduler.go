package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"dircrawl/internal/cleanup"
	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/disk"
	"dircrawl/internal/metrics"
)

// JobRunner runs a single job. *cleanup.Runner implements it.
type JobRunner interface {
	RunJob(ctx context.Context, job config.Job) (*cleanup.Result, error)
}

// Scheduler runs every configured job in order, once or on an interval.
type Scheduler struct {
	cfg     *config.Config
	runner  JobRunner
	db      *database.RunDB
	logger  *log.Logger
	trigger <-chan os.Signal
	usage   func(path string) (*disk.Usage, error)
}

// New returns a scheduler; db may be nil, which disables history pruning.
func New(cfg *config.Config, runner JobRunner, db *database.RunDB, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	metrics.Init()
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		db:     db,
		logger: logger,
		usage:  disk.GetUsage,
	}
}

// SetTrigger makes Run start an extra cycle whenever ch delivers.
func (s *Scheduler) SetTrigger(ch <-chan os.Signal) {
	s.trigger = ch
}

// RunOnce runs every job. A failing job does not stop the others; all
// failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.cfg == nil {
		return errors.New("nil config")
	}

	start := time.Now()
	s.updateFreeSpaceMetrics()

	var errs []error
	for _, job := range s.cfg.Jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.runner.RunJob(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
			continue
		}
		s.logger.Printf("job %s complete: deleted_files=%d deleted_dirs=%d freed=%d bytes warnings=%d",
			job.Name, res.DeletedFiles, res.DeletedDirectories, res.DeletedBytes, len(res.Warnings))
	}

	s.pruneHistory()
	s.logger.Printf("cycle complete: jobs=%d failed=%d duration=%.3fs", len(s.cfg.Jobs), len(errs), time.Since(start).Seconds())
	return errors.Join(errs...)
}

// Run calls RunOnce immediately, then on every interval tick or trigger,
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg == nil {
		return errors.New("nil config")
	}

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Printf("error running cycle: %v", err)
	}

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
			s.logger.Println("run triggered")
		}
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Printf("error running cycle: %v", err)
		}
	}
}

func (s *Scheduler) updateFreeSpaceMetrics() {
	seen := make(map[string]bool, len(s.cfg.Jobs))
	for _, job := range s.cfg.Jobs {
		if seen[job.Root] {
			continue
		}
		seen[job.Root] = true

		u, err := s.usage(job.Root)
		if err != nil {
			s.logger.Printf("failed to get disk usage for %s: %v", job.Root, err)
			continue
		}
		metrics.UpdateDiskMetrics(job.Root, u)
	}
}

func (s *Scheduler) pruneHistory() {
	if s.db == nil || s.cfg.HistoryRetentionDays <= 0 {
		return
	}
	n, err := s.db.DeleteOldRuns(s.cfg.HistoryRetention())
	if err != nil {
		s.logger.Printf("failed to prune run history: %v", err)
		metrics.ErrorsTotal.Inc()
		return
	}
	if n > 0 {
		s.logger.Printf("pruned %d runs older than %d days", n, s.cfg.HistoryRetentionDays)
	}
}
