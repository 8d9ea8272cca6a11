package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dircrawl/internal/cleanup"
	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/disk"
	"dircrawl/internal/logging"
	"dircrawl/internal/metrics"
	"dircrawl/internal/scheduler"
)

const healthCheckInterval = 30 * time.Second

// NewRunCommand creates the 'dircrawl run' command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured jobs",
		Long: `Run every job from the configuration file, on the configured interval
until interrupted. SIGUSR1, a POST to the metrics server's /trigger or to
/api/v1/trigger starts an extra cycle.

With --once every job runs a single time; with --job only the named job runs,
once, and its statistics are printed.`,
		Args: cobra.NoArgs,
		RunE: runJobs,
	}

	cmd.Flags().Bool("once", false, "Run every job once and exit")
	cmd.Flags().String("job", "", "Run only the named job, once")

	return cmd
}

func runJobs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	once, _ := cmd.Flags().GetBool("once")
	jobName, _ := cmd.Flags().GetString("job")

	var job config.Job
	if jobName != "" {
		var ok bool
		if job, ok = cfg.Job(jobName); !ok {
			return &ConfigError{Err: fmt.Errorf("no job named %q", jobName)}
		}
	}

	logger := logging.NewWithConfig(cfg)
	logger.Printf("dircrawl %s starting, %d jobs", Version, len(cfg.Jobs))
	if dryRun {
		logger.Println("DRY RUN MODE: No files will be deleted")
	}

	db, err := openRunDB(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeRunDB(db, logger)

	runner := cleanup.NewRunner(logger, cfg, dryRun, db)

	if jobName != "" {
		res, err := runner.RunJob(cmd.Context(), job)
		if res != nil {
			printResult(cmd.OutOrStdout(), res)
		}
		return err
	}

	sched := scheduler.New(cfg, runner, db, logger)
	if once {
		return sched.RunOnce(cmd.Context())
	}
	return serve(cmd.Context(), cfg, runner, sched, db, logger)
}

// serve runs the scheduler loop with the metrics and API servers until SIGINT
// or SIGTERM.
func serve(parent context.Context, cfg *config.Config, runner *cleanup.Runner, sched *scheduler.Scheduler,
	db *database.RunDB, logger *log.Logger) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	trigger := make(chan os.Signal, 1)
	signal.Notify(trigger, syscall.SIGUSR1)
	defer signal.Stop(trigger)
	sched.SetTrigger(trigger)
	metrics.SetTriggerChannel(trigger)

	hc := metrics.NewHealthChecker(healthCheckInterval)
	registerHealthChecks(hc, cfg, db)
	hc.Start()
	defer hc.Stop()
	metrics.SetHealthChecker(hc)

	if cfg.Prometheus.Port > 0 {
		addr := cfg.PrometheusAddress()
		logger.Printf("Starting Prometheus metrics on %s", addr)
		metrics.StartServer(addr, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			metrics.Shutdown(shutdownCtx, logger)
		}()
	}

	if cfg.API.Port > 0 {
		stopAPI, err := startAPI(ctx, cfg, runner, db, trigger, hc, logger)
		if err != nil {
			return err
		}
		defer stopAPI()
	}

	logger.Printf("Starting scheduler, interval %s", cfg.Interval())
	err := sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Println("dircrawl stopped")
		return nil
	}
	return err
}

func registerHealthChecks(hc *metrics.HealthChecker, cfg *config.Config, db *database.RunDB) {
	if db != nil {
		hc.RegisterComponent("database", func() error {
			_, err := db.GetDatabaseStats()
			return err
		}, 5*time.Second)
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		root := job.Root
		if seen[root] {
			continue
		}
		seen[root] = true
		hc.RegisterComponent("root:"+root, func() error {
			if disk.IsNFSStale(root, cfg.NFSTimeoutDuration()) {
				return fmt.Errorf("%s is on a stale NFS mount", root)
			}
			_, err := disk.GetUsage(root)
			return err
		}, cfg.NFSTimeoutDuration()+time.Second)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// openRunDB opens the history database; an empty path disables history.
func openRunDB(path string, logger *log.Logger) (*database.RunDB, error) {
	if path == "" {
		return nil, nil
	}
	logger.Printf("Opening history database: %s", path)
	db, err := database.NewRunDB(path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return db, nil
}

func closeRunDB(db *database.RunDB, logger *log.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Printf("ERROR: Failed to close database: %v", err)
	}
}
