package database

import (
	"context"

	"route-optimizer/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	DistanceCache() DistanceCacheRepository
	RouteHistory() RouteHistoryRepository
}

// CoordinatePair is an ordered origin/destination lookup key
type CoordinatePair struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// DistanceCacheRepository handles distance cache persistence. Coordinates
// are matched after rounding to 5 decimal places.
type DistanceCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error)
	GetBatch(ctx context.Context, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error)
	Set(ctx context.Context, entry *models.DistanceCacheEntry) error
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
	Clear(ctx context.Context) error
}

// RouteHistoryRepository handles optimized route persistence
type RouteHistoryRepository interface {
	Save(ctx context.Context, record *models.RouteRecord) error
	GetByID(ctx context.Context, id string) (*models.RouteRecord, error)
	// List returns the most recent records first
	List(ctx context.Context, limit int) ([]models.RouteRecord, error)
}

// DefaultHistoryLimit caps List when the caller passes a non-positive limit
const DefaultHistoryLimit = 50

// NormalizeLimit clamps a history limit to [1, 500]
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, 500)
}
