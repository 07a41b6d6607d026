package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vietddude/keeper/internal/core/config"
	redisclient "github.com/vietddude/keeper/internal/infra/redis"
	"github.com/vietddude/keeper/internal/infra/storage"
	"github.com/vietddude/keeper/internal/infra/storage/memory"
	"github.com/vietddude/keeper/internal/infra/storage/postgres"
)

// backend is the opened state store and the connections to close with it.
type backend struct {
	store storage.KVStore
	db    *postgres.DB
	redis *redisclient.Client
}

func openBackend(ctx context.Context, cfg *config.AppConfig) (*backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage", "prefix", cfg.Redis.Prefix)
		return &backend{store: client, redis: client}, nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL storage")
		return &backend{store: postgres.NewKVStore(db), db: db}, nil

	default:
		slog.Warn("Using Memory storage, state is lost on restart")
		return &backend{store: memory.NewStore()}, nil
	}
}

func (b *backend) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// schedulePeriod parses a cron spec and returns the gap between its next two runs.
func schedulePeriod(spec string, now time.Time) (cron.Schedule, time.Duration, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	first := sched.Next(now)
	return sched, sched.Next(first).Sub(first), nil
}

// cronLogger forwards cron's logs to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
