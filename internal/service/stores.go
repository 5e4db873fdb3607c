package service

import (
	"context"
	"fmt"
	"log/slog"

	"nrrp.app/referrals/core/config"
	"nrrp.app/referrals/core/db"
	"nrrp.app/referrals/internal/store"
	"nrrp.app/referrals/internal/store/sqlite"
)

// OpenStores connects the configured backend, applies its migrations and
// returns the stores with a close func.
func OpenStores(ctx context.Context, cfg config.DBConfig) (*store.Stores, func(), error) {
	switch cfg.Driver {
	case config.StorageDriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.InfoContext(ctx, "sqlite store opened", "path", cfg.SQLitePath)
		return store.NewStoresFrom(s, cfg.Timeout), func() { _ = s.Close() }, nil

	case config.StorageDriverPostgres:
		database, err := db.New(ctx, db.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		slog.InfoContext(ctx, "database connected")
		return store.NewStores(database, cfg.Timeout), database.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
