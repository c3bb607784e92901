package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"route-optimizer/internal/database"

	_ "modernc.org/sqlite"
)

const schemaVersion = 2

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Store is a SQLite-based data store implementing database.DataStore
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	distanceCacheRepo database.DistanceCacheRepository
	routeHistoryRepo  database.RouteHistoryRepository
}

// New creates a new SQLite store at the specified path
func New(dbPath string) (*Store, error) {
	inMemory := dbPath == MemoryPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log.Printf("[SQLITE] Opening database at: %s", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA busy_timeout = 5000",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.distanceCacheRepo = &distanceCacheRepository{store: store}
	store.routeHistoryRepo = &routeHistoryRepository{store: store}

	return store, nil
}

// GetDBPath returns the current database file path
func (s *Store) GetDBPath() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, create everything
		return s.createSchema()
	}

	if version < schemaVersion {
		return s.runMigrations(version)
	}
	return nil
}

const distanceCacheDDL = `
	CREATE TABLE IF NOT EXISTS distance_cache (
		origin_lat REAL NOT NULL,
		origin_lng REAL NOT NULL,
		dest_lat REAL NOT NULL,
		dest_lng REAL NOT NULL,
		distance_meters REAL NOT NULL,
		duration_secs REAL NOT NULL,
		PRIMARY KEY (origin_lat, origin_lng, dest_lat, dest_lng)
	);`

const optimizedRoutesDDL = `
	CREATE TABLE IF NOT EXISTS optimized_routes (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		objective TEXT NOT NULL,
		solver TEXT NOT NULL,
		matrix_source TEXT NOT NULL,
		stop_count INTEGER NOT NULL,
		total_distance_km REAL NOT NULL,
		total_time_h REAL NOT NULL,
		payload BLOB,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_optimized_routes_created ON optimized_routes(created_at DESC);`

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);` + distanceCacheDDL + optimizedRoutesDDL

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	log.Printf("[SQLITE] Schema initialized (version %d)", schemaVersion)
	return nil
}

func (s *Store) runMigrations(fromVersion int) error {
	// Version 1 databases only carried the distance cache
	if fromVersion < 2 {
		if _, err := s.db.Exec(optimizedRoutesDDL); err != nil {
			return fmt.Errorf("failed to migrate to version 2: %w", err)
		}
	}

	_, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion)
	if err == nil {
		log.Printf("[SQLITE] Schema migrated: from=%d to=%d", fromVersion, schemaVersion)
	}
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		if s.dbPath != MemoryPath {
			// Checkpoint WAL before closing
			s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DistanceCache() database.DistanceCacheRepository { return s.distanceCacheRepo }
func (s *Store) RouteHistory() database.RouteHistoryRepository   { return s.routeHistoryRepo }
