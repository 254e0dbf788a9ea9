// Package main is the entry point for the jobqueue controller.
// The controller serves the HTTP API and runs the stale-claim reaper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobqueue/internal/bootstrap"
	"jobqueue/internal/config"
	"jobqueue/internal/controller"
	"jobqueue/internal/logger"
	"jobqueue/internal/observability"
	"jobqueue/internal/queue"
	"jobqueue/internal/reaper"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting (postgres only)")
	configPath := flag.String("config", "", "Path to config file (default: jobqueue.yaml in current directory)")
	flag.Parse()

	if err := run(*configPath, *migrateFlag); err != nil {
		slog.Error("controller exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "jobqueue-controller", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	store, err := bootstrap.OpenStore(ctx, cfg, migrate, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	notifier := bootstrap.OpenNotifier(ctx, cfg, log)
	defer notifier.Close()

	engine := queue.New(store,
		queue.WithLogger(log),
		queue.WithLockTimeout(cfg.LockTimeout),
		queue.WithPublisher(notifier),
	)

	// Queried only when scraped.
	if _, err := observability.RegisterQueueDepth(otel.Meter("jobqueue-controller"), engine); err != nil {
		log.Warn("failed to register queue depth metric", "error", err)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, engine, controller.Options{
		Logger:         log,
		AdminTokenHash: cfg.AdminTokenHash,
		EnqueueRate:    cfg.EnqueueRateLimit,
		EnqueueBurst:   cfg.EnqueueBurst,
		Metrics:        metricsHandler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return reaper.New(engine, cfg.ReaperInterval, log).Run(gctx) })

	log.Info("jobqueue controller starting", "addr", addr, "driver", cfg.DatabaseDriver)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("controller exited properly")
	return nil
}
