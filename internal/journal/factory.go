package journal

import (
	"context"

	"trendmaker/internal/adapters/journal/postgres"
	"trendmaker/internal/adapters/journal/redis"
	"trendmaker/internal/adapters/journal/sqlite"
	"trendmaker/internal/config"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

// Open connects the store named by cfg.Driver. It returns nil, nil for
// the none driver.
func Open(ctx context.Context, cfg config.JournalConfig) (ports.JournalStore, error) {
	var (
		store ports.JournalStore
		err   error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		store, err = openSQLite(cfg)
	case "postgres":
		store, err = openPostgres(ctx, cfg)
	case "redis":
		store, err = openRedis(ctx, cfg)
	default:
		return nil, errors.Validation("unknown journal driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openSQLite(cfg config.JournalConfig) (ports.JournalStore, error) {
	s, err := sqlite.New(cfg.DSN, cfg.Keep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg config.JournalConfig) (ports.JournalStore, error) {
	s, err := postgres.Open(ctx, cfg.DSN, cfg.Keep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(ctx context.Context, cfg config.JournalConfig) (ports.JournalStore, error) {
	s, err := redis.Open(ctx, cfg.DSN, cfg.Key, cfg.Keep)
	if err != nil {
		return nil, err
	}
	return s, nil
}
