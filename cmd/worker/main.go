// Package main is the entry point for the jobqueue worker.
// The worker claims jobs straight from the store and runs them with the
// built-in executors. It owns concurrency, timeouts and outcome reporting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobqueue/internal/bootstrap"
	"jobqueue/internal/config"
	"jobqueue/internal/logger"
	"jobqueue/internal/observability"
	"jobqueue/internal/queue"
	"jobqueue/internal/worker"
	"jobqueue/internal/worker/executor"
)

const metricsAddr = ":6162"

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: jobqueue.yaml in current directory)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "jobqueue-worker", cfg.OTELEndpoint)
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

	store, err := bootstrap.OpenStore(ctx, cfg, false, log)
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

	opts := []worker.Option{worker.WithLogger(log)}
	if wakeups, err := notifier.Subscribe(ctx); err != nil {
		log.Warn("ready notifications unavailable, polling only", "error", err)
	} else {
		opts = append(opts, worker.WithWakeups(wakeups))
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	agent := worker.New(engine, executor.Defaults(cfg.WorkDir, log), worker.AgentConfig{
		ID:           workerID,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,
		JobTimeout:   cfg.WorkerJobTimeout,
	}, opts...)

	// Dedicated metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("worker metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("worker started", "worker_id", workerID, "concurrency", cfg.WorkerConcurrency)
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("worker stopped")
	return nil
}

// defaultWorkerID identifies this process when worker_id is unset.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
