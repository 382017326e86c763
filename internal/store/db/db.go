// Package db selects a store driver by name.
package db

import (
	"context"
	"fmt"

	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/store/postgres"
	"github.com/benvon/compass/internal/store/sqlite"
)

// Open returns a migrated store for the named driver. Only postgres and
// sqlite are supported; sqlite is meant for local development.
func Open(ctx context.Context, driver, dsn string) (store.Store, error) {
	switch driver {
	case "postgres":
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", driver)
	}
}
