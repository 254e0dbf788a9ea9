// Package bootstrap wires configuration into the store and notifier shared
// by the controller and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"jobqueue/internal/config"
	"jobqueue/internal/notify"
	"jobqueue/internal/store"
	"jobqueue/internal/store/postgres"
	"jobqueue/internal/store/sqlite"
)

// OpenStore connects to the configured database. Postgres migrations run
// only when migrate is set; the sqlite store always migrates on open.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (store.JobStore, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", "path", cfg.DatabaseURL)
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			logger.Info("running database migrations")
			if err := postgres.Migrate(s.DB()); err != nil {
				s.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations completed")
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// OpenNotifier returns a Redis notifier when redis_url is set and a Noop
// otherwise. An unreachable Redis is logged and degrades to Noop, since
// notifications only shorten poll latency.
func OpenNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.RedisURL == "" {
		return notify.Noop{}
	}
	n, err := notify.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("ready notifications disabled", "error", err)
		return notify.Noop{}
	}
	logger.Info("ready notifications enabled", "channel", notify.Channel)
	return n
}
