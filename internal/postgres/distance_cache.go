// Package postgres provides a shared distance cache backed by PostgreSQL,
// for deployments where several optimizer instances should reuse each
// other's routing lookups.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS distance_cache (
	origin_lat DOUBLE PRECISION NOT NULL,
	origin_lng DOUBLE PRECISION NOT NULL,
	dest_lat DOUBLE PRECISION NOT NULL,
	dest_lng DOUBLE PRECISION NOT NULL,
	distance_meters DOUBLE PRECISION NOT NULL,
	duration_secs DOUBLE PRECISION NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (origin_lat, origin_lng, dest_lat, dest_lng)
)`

const selectSQL = `SELECT origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs
	FROM distance_cache
	WHERE origin_lat = $1 AND origin_lng = $2 AND dest_lat = $3 AND dest_lng = $4`

const upsertSQL = `INSERT INTO distance_cache (origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (origin_lat, origin_lng, dest_lat, dest_lng)
	DO UPDATE SET distance_meters = excluded.distance_meters, duration_secs = excluded.duration_secs, cached_at = now()`

// DistanceCache implements database.DistanceCacheRepository on a pgx pool
type DistanceCache struct {
	pool *pgxpool.Pool
}

// NewDistanceCache connects to dsn, verifies the connection and ensures the schema exists
func NewDistanceCache(ctx context.Context, dsn string) (*DistanceCache, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create distance_cache table: %w", err)
	}

	log.Printf("[POSTGRES] Distance cache ready")
	return &DistanceCache{pool: pool}, nil
}

func key(origin, dest models.Coordinates) []any {
	return []any{
		models.RoundCoordinate(origin.Lat),
		models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat),
		models.RoundCoordinate(dest.Lng),
	}
}

func scan(row pgx.Row) (*models.DistanceCacheEntry, error) {
	var e models.DistanceCacheEntry
	err := row.Scan(&e.Origin.Lat, &e.Origin.Lng, &e.Destination.Lat, &e.Destination.Lng, &e.DistanceMeters, &e.DurationSecs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *DistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	entry, err := scan(c.pool.QueryRow(ctx, selectSQL, key(origin, dest)...))
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}
	return entry, nil
}

func (c *DistanceCache) GetBatch(ctx context.Context, pairs []database.CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	result := make(map[string]*models.DistanceCacheEntry)
	if len(pairs) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(selectSQL, key(p.Origin, p.Dest)...)
	}

	br := c.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, p := range pairs {
		entry, err := scan(br.QueryRow())
		if err != nil {
			return nil, fmt.Errorf("failed to query batch entry: %w", err)
		}
		if entry != nil {
			result[database.MakeCacheKey(p.Origin, p.Dest)] = entry
		}
	}
	return result, nil
}

func (c *DistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return c.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

func (c *DistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertSQL, append(key(e.Origin, e.Destination), e.DistanceMeters, e.DurationSecs)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert distance cache entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *DistanceCache) Clear(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, "TRUNCATE distance_cache"); err != nil {
		return fmt.Errorf("failed to clear distance cache: %w", err)
	}
	return nil
}

// HealthCheck pings the pool
func (c *DistanceCache) HealthCheck(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases all pooled connections
func (c *DistanceCache) Close() {
	c.pool.Close()
}
