package database

import (
	"fmt"
	"os"
	"path/filepath"
)

// Locations of local state under the user's home directory
const (
	AppDirName        = ".route-optimizer"
	CacheDirName      = "cache"
	DistanceCacheFile = "distances.json"
	SQLiteDBFileName  = "routes.db"
)

// appDir returns ~/.route-optimizer joined with subdirs, creating the
// directory if needed
func appDir(subdirs ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(append([]string{home, AppDirName}, subdirs...)...)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// GetDistanceCachePath returns ~/.route-optimizer/cache/distances.json
func GetDistanceCachePath() (string, error) {
	dir, err := appDir(CacheDirName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DistanceCacheFile), nil
}

// GetDefaultDBPath returns ~/.route-optimizer/routes.db
func GetDefaultDBPath() (string, error) {
	dir, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SQLiteDBFileName), nil
}
