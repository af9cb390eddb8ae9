package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ympact/typesense-sync/internal/config"
	"github.com/ympact/typesense-sync/internal/factory"
	"github.com/ympact/typesense-sync/internal/health"
	"github.com/ympact/typesense-sync/internal/logger"
	"github.com/ympact/typesense-sync/internal/opsserver"
	"github.com/ympact/typesense-sync/internal/scheduler"
)

func runServe(ctx context.Context, cfg *config.Config, app *factory.App) error {
	log := logger.NewWithLevel("scoutctl", cfg.LogLevel)
	svc := startHealthCheckers(ctx, cfg, app, log)

	if !svc.WaitUntilHealthy(ctx, startupTimeout(cfg)) {
		err := fmt.Errorf("startup aborted: dependencies not healthy: %v", svc.Components())
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return opsserver.Serve(ctx, cfg.GetHTTPAddr(), opsserver.NewRouter(svc, statusLister(app), log), log)
	})
	if cfg.ScheduleInterval > 0 {
		w := scheduler.NewWorker(app.Migrator, app.State, app.Models.All,
			scheduler.Config{Interval: cfg.ScheduleInterval, RunOnStart: true}, log)
		g.Go(func() error {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	} else {
		log.Info().Msg("scheduled schema updates disabled")
	}
	return g.Wait()
}

func startHealthCheckers(ctx context.Context, cfg *config.Config, app *factory.App, log zerolog.Logger) *health.ServiceHealthChecker {
	checkers := []health.Checker{
		health.NewPingChecker("store", app.DB, cfg.HealthProbeTimeout, log),
	}
	if p, ok := app.Backend.(health.HealthPinger); ok {
		checkers = append(checkers, health.NewPingChecker("typesense", p, cfg.HealthProbeTimeout, log))
	}
	for _, c := range checkers {
		go c.Start(ctx, cfg.HealthInterval)
	}
	svc := health.NewServiceHealthChecker(log, checkers...)
	go svc.Start(ctx, cfg.HealthInterval)
	return svc
}

// startupTimeout is twice the probe interval, at least a minute.
func startupTimeout(cfg *config.Config) time.Duration {
	if t := 2 * cfg.HealthInterval; t > time.Minute {
		return t
	}
	return time.Minute
}
