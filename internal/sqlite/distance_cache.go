package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

type distanceCacheRepository struct {
	store *Store
}

const selectDistanceSQL = `SELECT origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs
	FROM distance_cache
	WHERE origin_lat = ? AND origin_lng = ? AND dest_lat = ? AND dest_lng = ?`

const upsertDistanceSQL = `INSERT OR REPLACE INTO distance_cache
	(origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs)
	VALUES (?, ?, ?, ?, ?, ?)`

// roundedKey returns the four rounded coordinates used as the primary key
func roundedKey(origin, dest models.Coordinates) []any {
	return []any{
		models.RoundCoordinate(origin.Lat),
		models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat),
		models.RoundCoordinate(dest.Lng),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.DistanceCacheEntry, error) {
	var entry models.DistanceCacheEntry
	err := row.Scan(
		&entry.Origin.Lat, &entry.Origin.Lng,
		&entry.Destination.Lat, &entry.Destination.Lng,
		&entry.DistanceMeters, &entry.DurationSecs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *distanceCacheRepository) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry, err := scanEntry(r.store.db.QueryRowContext(ctx, selectDistanceSQL, roundedKey(origin, dest)...))
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}
	return entry, nil
}

func (r *distanceCacheRepository) GetBatch(ctx context.Context, pairs []database.CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	result := make(map[string]*models.DistanceCacheEntry)
	if len(pairs) == 0 {
		return result, nil
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stmt, err := r.store.db.PrepareContext(ctx, selectDistanceSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare batch query: %w", err)
	}
	defer stmt.Close()

	for _, pair := range pairs {
		entry, err := scanEntry(stmt.QueryRowContext(ctx, roundedKey(pair.Origin, pair.Dest)...))
		if err != nil {
			return nil, fmt.Errorf("failed to query batch entry: %w", err)
		}
		if entry != nil {
			result[database.MakeCacheKey(pair.Origin, pair.Dest)] = entry
		}
	}

	return result, nil
}

func (r *distanceCacheRepository) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return r.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

func (r *distanceCacheRepository) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertDistanceSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		args := append(roundedKey(entry.Origin, entry.Destination), entry.DistanceMeters, entry.DurationSecs)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert batch entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *distanceCacheRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM distance_cache"); err != nil {
		return fmt.Errorf("failed to clear distance cache: %w", err)
	}
	return nil
}
