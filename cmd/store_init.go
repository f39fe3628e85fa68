package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/resilience"
	"github.com/sells-group/feedcurve/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "feedcurve.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		retry := resilience.FromRetryConfig(cfg.Store.RetryAttempts, cfg.Store.RetryBackoffMs, 0, 0, 0)
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, retry)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects to the configured store and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
