package core

import (
	"context"
	"fmt"

	"poemhub/internal/config"
	"poemhub/internal/infra/persistence/memory"
	"poemhub/internal/infra/persistence/postgres"
	"poemhub/internal/infra/persistence/rest"
	"poemhub/internal/infra/persistence/sqlite"
	"poemhub/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageREST     StorageDriver = config.DriverREST     // hosted data service (default)
	StoragePostgres StorageDriver = config.DriverPostgres // PostgreSQL server
	StorageSQLite   StorageDriver = config.DriverSQLite   // embedded sqlite file
	StorageMemory   StorageDriver = config.DriverMemory   // in-memory only (tests / ephemeral)
)

// PersistentStore aliases the domain contract for callers of this package.
type PersistentStore = domain.PersistentStore

// OpenPersistentStore selects a backend from cfg.Driver, defaulting to rest.
// The rest backend never fails to open: missing credentials surface as
// domain.ErrNotConfigured on each call.
func OpenPersistentStore(ctx context.Context, cfg config.Storage) (PersistentStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageREST
	}
	switch driver {
	case StorageREST:
		return rest.NewStore(rest.Config{URL: cfg.SupabaseURL, Key: cfg.SupabaseKey}), nil
	case StoragePostgres:
		ps, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return ps, nil
	case StorageSQLite:
		ss, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case StorageMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
