package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"route-optimizer/internal/models"
)

// fileCacheVersion is bumped whenever the on-disk layout changes
const fileCacheVersion = 1

type fileCacheDocument struct {
	Version int                         `json:"version"`
	SavedAt time.Time                   `json:"saved_at"`
	Entries []models.DistanceCacheEntry `json:"entries"`
}

// FileDistanceCache keeps the distance cache in memory and rewrites a JSON
// file after every change. Coordinates are rounded before they are stored.
type FileDistanceCache struct {
	filePath string
	entries  map[string]models.DistanceCacheEntry
	mu       sync.RWMutex
}

// NewFileDistanceCache opens the cache at filePath, or at
// ~/.route-optimizer/cache/distances.json when filePath is empty. A missing
// file is an empty cache; the file is created on the first write.
func NewFileDistanceCache(filePath string) (*FileDistanceCache, error) {
	if filePath == "" {
		var err error
		if filePath, err = GetDistanceCachePath(); err != nil {
			return nil, fmt.Errorf("failed to get cache file path: %w", err)
		}
	}

	c := &FileDistanceCache{
		filePath: filePath,
		entries:  make(map[string]models.DistanceCacheEntry),
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	log.Printf("[CACHE] Using distance cache file: path=%s entries=%d", filePath, len(c.entries))
	return c, nil
}

func (c *FileDistanceCache) load() error {
	raw, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var doc fileCacheDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}
	if doc.Version != fileCacheVersion {
		return fmt.Errorf("unsupported cache file version %d", doc.Version)
	}

	for _, e := range doc.Entries {
		c.put(e)
	}
	return nil
}

// put stores e under its rounded key. The caller holds the write lock.
func (c *FileDistanceCache) put(e models.DistanceCacheEntry) {
	e.Origin = roundCoords(e.Origin)
	e.Destination = roundCoords(e.Destination)
	c.entries[MakeCacheKey(e.Origin, e.Destination)] = e
}

// persist writes the whole cache through a temp file and rename. The caller
// holds the write lock.
func (c *FileDistanceCache) persist() error {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	doc := fileCacheDocument{
		Version: fileCacheVersion,
		SavedAt: time.Now().UTC(),
		Entries: make([]models.DistanceCacheEntry, 0, len(keys)),
	}
	for _, k := range keys {
		doc.Entries = append(doc.Entries, c.entries[k])
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, c.filePath); err != nil {
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

func (c *FileDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[MakeCacheKey(origin, dest)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *FileDistanceCache) GetBatch(ctx context.Context, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	return getBatch(ctx, c, pairs)
}

func (c *FileDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(*entry)
	return c.persist()
}

func (c *FileDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.put(e)
	}
	return c.persist()
}

func (c *FileDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]models.DistanceCacheEntry)
	return c.persist()
}

// Count returns the number of cached pairs
func (c *FileDistanceCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func roundCoords(p models.Coordinates) models.Coordinates {
	return models.Coordinates{Lat: models.RoundCoordinate(p.Lat), Lng: models.RoundCoordinate(p.Lng)}
}
