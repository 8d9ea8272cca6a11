package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"

	"dircrawl/internal/cleanup"
	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/metrics"
	"dircrawl/internal/web"
	"dircrawl/internal/web/api"
	"dircrawl/internal/web/auth"
	"dircrawl/internal/web/websocket"
)

// jwtSecretEnv overrides api.jwt_secret_file.
const jwtSecretEnv = "DIRCRAWL_JWT_SECRET"

// startAPI starts the HTTP API and the run event hub. The returned function
// shuts the server down.
func startAPI(ctx context.Context, cfg *config.Config, runner *cleanup.Runner, db *database.RunDB,
	trigger chan<- os.Signal, hc *metrics.HealthChecker, logger *log.Logger) (func(), error) {
	secret, err := auth.LoadSecret(cfg.API.JWTSecretFile, jwtSecretEnv)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	runner.SetNotify(func(res *cleanup.Result, runErr error) {
		if err := hub.Publish(runEvent(res, runErr)); err != nil {
			logger.Printf("WARN: run event for %s not published: %v", res.Job, err)
		}
	})

	srv := web.NewServer(web.Options{
		Addr:    cfg.APIAddress(),
		TLSCert: cfg.API.TLSCert,
		TLSKey:  cfg.API.TLSKey,
		Handlers: &api.Handlers{
			Config:  cfg,
			DB:      db,
			Trigger: trigger,
			Health:  hc,
		},
		Hub:       hub,
		JWT:       auth.NewJWTManager(secret, cfg.TokenTTL()),
		Logger:    logger,
		RateLimit: rate.Limit(cfg.API.RateLimit),
		RateBurst: cfg.API.RateBurst,
	})
	addr, err := srv.Start()
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	logger.Printf("Starting API server on %s", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("ERROR: API server shutdown: %v", err)
		}
	}, nil
}

func runEvent(res *cleanup.Result, err error) websocket.RunEvent {
	ev := websocket.RunEvent{
		RunID:              res.RunID,
		Job:                res.Job,
		DryRun:             res.DryRun,
		Status:             database.StatusSucceeded,
		StartedAt:          res.StartedAt,
		FinishedAt:         res.FinishedAt,
		DeletedFiles:       res.DeletedFiles,
		DeletedDirectories: res.DeletedDirectories,
		DeletedBytes:       res.DeletedBytes,
		Warnings:           len(res.Warnings),
	}
	if s := res.Statistics; s != nil {
		ev.Directories = s.DirectoryCount()
		ev.Files = s.TotalFileCount()
	}
	if err != nil {
		ev.Status = database.StatusFailed
		ev.Error = err.Error()
	}
	return ev
}
