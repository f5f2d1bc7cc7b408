package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/cache"
	"github.com/sells-group/lender-match/internal/matching"
	"github.com/sells-group/lender-match/internal/scorer"
	"github.com/sells-group/lender-match/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lender-match.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates store settings, connects and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initMatcher builds the matching service over st. The returned cleanup
// closes the result cache when one is configured.
func initMatcher(ctx context.Context, st store.Store, observer matching.Observer) (*matching.Service, func(), error) {
	if err := cfg.Validate("engine"); err != nil {
		return nil, nil, err
	}
	if err := scorer.ValidateConfig(cfg.Scorer); err != nil {
		return nil, nil, err
	}

	engine := matching.NewEngine(scorer.New(cfg.Scorer), cfg.Engine.Workers)

	var opts []matching.ServiceOption
	if observer != nil {
		opts = append(opts, matching.WithObserver(observer))
	}

	cleanup := func() {}
	if cfg.Cache.RedisURL != "" {
		ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, ttl)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, matching.WithCache(rc))
		cleanup = func() { rc.Close() } //nolint:errcheck
		zap.L().Info("match result cache enabled", zap.Duration("ttl", ttl))
	}

	return matching.NewService(st, st, engine, opts...), cleanup, nil
}
