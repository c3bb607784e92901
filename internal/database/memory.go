package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"route-optimizer/internal/models"
)

// MakeCacheKey creates a unique key for a coordinate pair
func MakeCacheKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f",
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lng))
}

// MemoryDistanceCache is a process-local DistanceCacheRepository
type MemoryDistanceCache struct {
	mu      sync.RWMutex
	entries map[string]models.DistanceCacheEntry
}

// NewMemoryDistanceCache creates an empty in-memory cache
func NewMemoryDistanceCache() *MemoryDistanceCache {
	return &MemoryDistanceCache{entries: make(map[string]models.DistanceCacheEntry)}
}

func (c *MemoryDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[MakeCacheKey(origin, dest)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryDistanceCache) GetBatch(ctx context.Context, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	return getBatch(ctx, c, pairs)
}

func (c *MemoryDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[MakeCacheKey(entry.Origin, entry.Destination)] = *entry
	return nil
}

func (c *MemoryDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		c.entries[MakeCacheKey(entry.Origin, entry.Destination)] = entry
	}
	return nil
}

func (c *MemoryDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.DistanceCacheEntry)
	return nil
}

// Count returns the number of cached pairs
func (c *MemoryDistanceCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// getBatch looks pairs up one at a time through Get
func getBatch(ctx context.Context, repo DistanceCacheRepository, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	result := make(map[string]*models.DistanceCacheEntry)
	for _, pair := range pairs {
		entry, err := repo.Get(ctx, pair.Origin, pair.Dest)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			result[MakeCacheKey(pair.Origin, pair.Dest)] = entry
		}
	}
	return result, nil
}

// MemoryRouteHistory keeps route records in insertion order
type MemoryRouteHistory struct {
	mu      sync.RWMutex
	records []models.RouteRecord
}

func NewMemoryRouteHistory() *MemoryRouteHistory {
	return &MemoryRouteHistory{}
}

func (h *MemoryRouteHistory) Save(ctx context.Context, record *models.RouteRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *record)
	return nil
}

func (h *MemoryRouteHistory) GetByID(ctx context.Context, id string) (*models.RouteRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (h *MemoryRouteHistory) List(ctx context.Context, limit int) ([]models.RouteRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	limit = NormalizeLimit(limit)
	out := make([]models.RouteRecord, 0, min(limit, len(h.records)))
	for _, r := range slices.Backward(h.records) {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

// MemoryStore is a DataStore that lives only as long as the process
type MemoryStore struct {
	cache   DistanceCacheRepository
	history *MemoryRouteHistory
}

// NewMemoryStore wraps cache, or a fresh in-memory cache when nil, with in-memory history
func NewMemoryStore(cache DistanceCacheRepository) *MemoryStore {
	if cache == nil {
		cache = NewMemoryDistanceCache()
	}
	return &MemoryStore{cache: cache, history: NewMemoryRouteHistory()}
}

func (s *MemoryStore) Close() error { return nil }
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }
func (s *MemoryStore) DistanceCache() DistanceCacheRepository { return s.cache }
func (s *MemoryStore) RouteHistory() RouteHistoryRepository { return s.history }
