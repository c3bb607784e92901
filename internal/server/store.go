package server

import (
	"context"
	"fmt"

	"route-optimizer/internal/config"
	"route-optimizer/internal/database"
	"route-optimizer/internal/postgres"
	"route-optimizer/internal/sqlite"
)

// openStore selects the data store for the configured cache backend. The
// file and postgres backends keep route history in memory.
func openStore(ctx context.Context, cfg *config.Config) (database.DataStore, error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		path := cfg.SQLitePath
		if path == "" {
			var err error
			if path, err = database.GetDefaultDBPath(); err != nil {
				return nil, err
			}
		}
		return sqlite.New(path)

	case config.CacheFile:
		cache, err := database.NewFileDistanceCache(cfg.DistanceCachePath)
		if err != nil {
			return nil, err
		}
		return database.NewMemoryStore(cache), nil

	case config.CachePostgres:
		cache, err := postgres.NewDistanceCache(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &postgresStore{MemoryStore: database.NewMemoryStore(cache), cache: cache}, nil

	case config.CacheMemory:
		return database.NewMemoryStore(nil), nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// postgresStore reports the pool's health and releases it on Close
type postgresStore struct {
	*database.MemoryStore
	cache *postgres.DistanceCache
}

func (s *postgresStore) HealthCheck(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}

func (s *postgresStore) Close() error {
	s.cache.Close()
	return nil
}
