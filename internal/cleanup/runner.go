// Package cleanup runs configured jobs: it builds a crawler for each job and
// wires it to the safety validator, job lock, logging, metrics and history.
package cleanup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/afero"

	"dircrawl/internal/config"
	"dircrawl/internal/crawler"
	"dircrawl/internal/database"
	"dircrawl/internal/disk"
	"dircrawl/internal/fsops"
	"dircrawl/internal/limiter"
	"dircrawl/internal/metrics"
	"dircrawl/internal/runlock"
	"dircrawl/internal/safety"
	"dircrawl/internal/stats"
)

var ErrStaleRoot = errors.New("job root is on a stale NFS mount")

// Runner executes jobs one at a time.
type Runner struct {
	logger  Logger
	cfg     *config.Config
	dryRun  bool
	db      *database.RunDB
	limiter *limiter.CPULimiter

	fs      afero.Fs      // nil means the host filesystem
	deleter fsops.Deleter // nil removes from fs
	now     func() time.Time
	notify  func(*Result, error)
}

// NewRunner returns a runner for cfg. dryRun forces every job into dry-run
// mode; db may be nil to skip history.
func NewRunner(logger *log.Logger, cfg *config.Config, dryRun bool, db *database.RunDB) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	metrics.Init()
	return &Runner{
		logger:  &stdLogger{Logger: logger},
		cfg:     cfg,
		dryRun:  dryRun,
		db:      db,
		limiter: limiter.NewCPULimiter(cfg.ResourceLimits.MaxCPUPercent),
		now:     time.Now,
	}
}

// SetFs replaces the host filesystem. Stale-mount probing is skipped for
// filesystems other than the host's.
func (r *Runner) SetFs(fs afero.Fs) {
	r.fs = fs
}

// SetDeleter replaces the call that removes paths. It still sits behind the
// safety validator.
func (r *Runner) SetDeleter(d fsops.Deleter) {
	r.deleter = d
}

// SetNotify registers fn to be called after every run that got past the job
// lock, with the run's result and error.
func (r *Runner) SetNotify(fn func(*Result, error)) {
	r.notify = fn
}

// Result describes one run.
type Result struct {
	RunID      string
	Job        string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Statistics *stats.Statistics
	Warnings   []string

	DeletedFiles       int
	DeletedDirectories int
	DeletedBytes       int64
}

func (res *Result) Duration() time.Duration {
	return res.FinishedAt.Sub(res.StartedAt)
}

// RunJob runs job to completion. Once started a run is not interrupted; ctx
// is only checked before it begins. Every run that got past the job lock is
// recorded in the history database, failed ones with their error.
func (r *Runner) RunJob(ctx context.Context, job config.Job) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dryRun := r.dryRun || job.DryRun
	res := &Result{
		Job:        job.Name,
		DryRun:     dryRun,
		StartedAt:  r.now(),
		Statistics: stats.New(),
	}

	if r.fs == nil && r.cfg.NFSTimeout > 0 && disk.IsNFSStale(job.Root, r.cfg.NFSTimeoutDuration()) {
		r.logger.Warn("Skipping job on stale NFS mount", "job", job.Name, "root", job.Root)
		metrics.ErrorsTotal.Inc()
		return nil, fmt.Errorf("%w: %s", ErrStaleRoot, job.Root)
	}

	if r.cfg.LockDir != "" {
		lock, err := runlock.Acquire(r.cfg.LockDir, job.Name)
		if err != nil {
			r.logger.Warn("Job lock not acquired", "job", job.Name, "error", err)
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				r.logger.Error("Failed to release job lock", "job", job.Name, "error", err)
			}
		}()
	}

	r.logger.Info("Starting run", "job", job.Name, "root", job.Root, "mode", job.Mode, "dry_run", dryRun)
	runErr := r.crawl(job, res)
	res.FinishedAt = r.now()

	status := database.StatusSucceeded
	if runErr != nil {
		status = database.StatusFailed
		r.logger.Error("Run failed", "job", job.Name, "error", runErr)
	}
	metrics.RecordRun(job.Name, status, res.Duration(), res.FinishedAt)
	r.record(job, res, status, runErr)
	r.report(res)
	if r.notify != nil {
		r.notify(res, runErr)
	}
	return res, runErr
}

func (r *Runner) crawl(job config.Job, res *Result) error {
	validator, err := safety.NewValidator(job.Root, r.cfg.ProtectedPaths)
	if err != nil {
		return err
	}

	afs := r.fs
	if afs == nil {
		afs = afero.NewOsFs()
	}
	next := r.deleter
	if next == nil {
		next = fsops.AferoDeleter{Fs: afs}
	}
	fsys := fsops.NewFS(afs, fsops.Guard(validator, next))

	c, err := buildCrawler(fsys, job, res.DryRun, res.StartedAt, r.observe(job, res))
	if err != nil {
		return err
	}
	res.Statistics = c.Statistics()
	return c.Start()
}

// observe logs and counts what the crawler does.
func (r *Runner) observe(job config.Job, res *Result) crawler.Hooks {
	verb := func(present, past string) string {
		if res.DryRun {
			return "[DRY RUN] Would " + present
		}
		return past
	}

	return crawler.Hooks{
		OnDirectoryHello: func(*crawler.Crawler, fsops.Directory, *crawler.DirectorySignal) {
			r.limiter.Throttle()
			metrics.RecordNode(job.Name, stats.Directory.String())
		},
		OnFileHello: func(*crawler.Crawler, fsops.File, *crawler.FileSignal) {
			metrics.RecordNode(job.Name, stats.File.String())
		},
		OnDirectoryDeleting: func(c *crawler.Crawler, dir fsops.Directory) {
			r.logger.Info(verb("delete directory tree", "Deleting directory tree"), "job", job.Name, "path", c.VirtualPath(dir.FullName()))
		},
		OnDirectoryDeleted: func(c *crawler.Crawler, dir fsops.Directory) {
			res.DeletedDirectories++
			metrics.RecordDeletion(job.Name, stats.Directory.String(), 0, res.DryRun)
			r.logger.Info(verb("delete directory", "Deleted directory"), "job", job.Name, "path", c.VirtualPath(dir.FullName()))
		},
		OnFileDelete: func(c *crawler.Crawler, f fsops.File, size int64) {
			res.DeletedFiles++
			res.DeletedBytes += size
			metrics.RecordDeletion(job.Name, stats.File.String(), size, res.DryRun)
			r.logger.Info(verb("delete file", "Deleted file"), "job", job.Name, "path", c.VirtualPath(f.FullName()), "size", size)
		},
		OnWarning: func(_ *crawler.Crawler, msg string) {
			res.Warnings = append(res.Warnings, msg)
			metrics.RecordWarning(job.Name)
			r.logger.Warn(msg, "job", job.Name)
		},
	}
}

func (r *Runner) record(job config.Job, res *Result, status string, runErr error) {
	if r.db == nil {
		return
	}
	s := res.Statistics
	run := &database.Run{
		Job:                job.Name,
		Root:               job.Root,
		Mode:               string(job.Mode),
		DryRun:             res.DryRun,
		StartedAt:          res.StartedAt,
		FinishedAt:         res.FinishedAt,
		Status:             status,
		Directories:        s.DirectoryCount(),
		Files:              s.TotalFileCount(),
		TotalBytes:         s.TotalFileSize(),
		DeletedFiles:       res.DeletedFiles,
		DeletedDirectories: res.DeletedDirectories,
		DeletedBytes:       res.DeletedBytes,
		Warnings:           res.Warnings,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	entries := make([]database.Entry, 0, s.Len())
	for _, e := range s.Entries() {
		entries = append(entries, database.Entry{
			VirtualPath: e.VirtualPath,
			ObjectType:  e.ObjectType.String(),
			Size:        e.FileSize,
			Action:      e.Action,
		})
	}

	if err := r.db.RecordRun(run, entries); err != nil {
		// History is best effort; the run itself already happened.
		r.logger.Error("Failed to record run to database", "job", job.Name, "error", err)
		metrics.ErrorsTotal.Inc()
		return
	}
	res.RunID = run.ID
}

func (r *Runner) report(res *Result) {
	r.logger.Info("Run complete",
		"job", res.Job,
		"run_id", res.RunID,
		"directories", res.Statistics.DirectoryCount(),
		"files", res.Statistics.TotalFileCount(),
		"deleted_files", res.DeletedFiles,
		"deleted_directories", res.DeletedDirectories,
		"deleted_bytes", res.DeletedBytes,
		"warnings", len(res.Warnings),
		"duration", res.Duration(),
	)

	var buf bytes.Buffer
	if err := res.Statistics.Dump(&buf); err != nil {
		r.logger.Error("Failed to render statistics", "job", res.Job, "error", err)
		return
	}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		r.logger.Info(sc.Text(), "job", res.Job)
	}
}
