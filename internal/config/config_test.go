package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-optimizer/internal/traffic"
	"route-optimizer/internal/tsp"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddr)
	assert.Equal(t, "https://router.project-osrm.org", cfg.OSRMBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, CacheSQLite, cfg.CacheBackend)
	assert.Equal(t, 12, cfg.ExactThreshold)
	assert.Equal(t, tsp.DefaultGeneticConfig(), cfg.Genetic)
	assert.Equal(t, 60.0, cfg.FallbackSpeedKmh)
	assert.Equal(t, 8, cfg.CompassSectors)
	assert.Equal(t, traffic.ModeNeutral, cfg.TrafficMode)
	assert.Equal(t, "route-optimized", cfg.KafkaTopic)
	assert.Equal(t, "optimized-routes", cfg.Archive.Bucket)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.ArchiveEnabled())
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"SERVER_ADDR":      ":9090",
		"HTTP_TIMEOUT":     "5s",
		"CACHE_BACKEND":    "Postgres",
		"POSTGRES_DSN":     "postgres://localhost/routes",
		"EXACT_THRESHOLD":  "10",
		"GA_POPULATION":    "120",
		"GA_SEED":          "42",
		"TRAFFIC_MODE":     "simulated",
		"TRAFFIC_SEED":     "7",
		"COMPASS_SECTORS":  "4",
		"KAFKA_BROKERS":    "k1:9092, k2:9092,",
		"MINIO_ENDPOINT":   "localhost:9000",
		"MINIO_ACCESS_KEY": "minio",
		"MINIO_SECRET_KEY": "minio123",
		"MINIO_USE_SSL":    "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, CachePostgres, cfg.CacheBackend)
	assert.Equal(t, 10, cfg.ExactThreshold)
	assert.Equal(t, 120, cfg.Genetic.PopulationSize)
	assert.Equal(t, uint64(42), cfg.Genetic.Seed)
	assert.Equal(t, traffic.ModeSimulated, cfg.TrafficMode)
	assert.Equal(t, uint64(7), cfg.TrafficSeed)
	assert.Equal(t, 4, cfg.CompassSectors)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.ArchiveEnabled())
	assert.True(t, cfg.Archive.UseSSL)
}

func TestInvalidValuesAreReportedTogether(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"HTTP_TIMEOUT":     "soon",
		"GA_MUTATION_RATE": "lots",
		"CACHE_BACKEND":    "redis",
		"TRAFFIC_MODE":     "rush-hour",
	}))
	require.Error(t, err)

	var setting *ErrInvalidSetting
	require.True(t, errors.As(err, &setting))
	for _, key := range []string{"HTTP_TIMEOUT", "GA_MUTATION_RATE", "CACHE_BACKEND", "TRAFFIC_MODE"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"postgres without dsn", map[string]string{"CACHE_BACKEND": "postgres"}, "POSTGRES_DSN"},
		{"threshold too large", map[string]string{"EXACT_THRESHOLD": "20"}, "EXACT_THRESHOLD"},
		{"bad genetic config", map[string]string{"GA_ELITE_FRACTION": "1.5"}, "GA_*"},
		{"zero speed", map[string]string{"FALLBACK_SPEED_KMH": "0"}, "FALLBACK_SPEED_KMH"},
		{"compass", map[string]string{"COMPASS_SECTORS": "16"}, "COMPASS_SECTORS"},
		{"minio without credentials", map[string]string{"MINIO_ENDPOINT": "localhost:9000"}, "MINIO_ACCESS_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			var setting *ErrInvalidSetting
			require.True(t, errors.As(err, &setting), "got %v", err)
			assert.Equal(t, tt.key, setting.Key)
		})
	}
}
