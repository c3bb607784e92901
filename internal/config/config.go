// Package config reads service configuration from the environment, after
// loading a .env file from the working directory when one exists.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"route-optimizer/internal/archive"
	"route-optimizer/internal/distance"
	"route-optimizer/internal/events"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/matrix"
	"route-optimizer/internal/traffic"
	"route-optimizer/internal/tsp"
)

// CacheBackend selects where OSRM results are cached
type CacheBackend string

const (
	CacheSQLite   CacheBackend = "sqlite"
	CacheFile     CacheBackend = "file"
	CachePostgres CacheBackend = "postgres"
	CacheMemory   CacheBackend = "memory"
)

// Config is the complete service configuration
type Config struct {
	ServerAddr string

	OSRMBaseURL      string
	NominatimBaseURL string
	HTTPTimeout      time.Duration
	GeocodeRetries   int

	CacheBackend CacheBackend
	// SQLitePath empty selects ~/.route-optimizer/routes.db
	SQLitePath string
	// DistanceCachePath empty selects ~/.route-optimizer/cache/distances.json
	DistanceCachePath string
	PostgresDSN       string

	RoadNetworkPath string

	ExactThreshold   int
	Genetic          tsp.GeneticConfig
	FallbackSpeedKmh float64
	CompassSectors   int

	TrafficMode traffic.Mode
	TrafficSeed uint64

	KafkaBrokers []string
	KafkaTopic   string

	Archive archive.Config
}

// ErrInvalidSetting reports an unparseable or out-of-range variable
type ErrInvalidSetting struct {
	Key    string
	Value  string
	Reason string
}

func (e *ErrInvalidSetting) Error() string {
	return fmt.Sprintf("invalid %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Load reads .env (if present) and then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] No .env file found, assuming environment variables are set directly.")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, applying defaults for unset or
// empty variables. All invalid settings are reported together.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := &reader{lookup: lookup}

	cfg := &Config{
		ServerAddr:        r.str("SERVER_ADDR", "127.0.0.1:8080"),
		OSRMBaseURL:       r.str("OSRM_BASE_URL", distance.DefaultOSRMBaseURL),
		NominatimBaseURL:  r.str("NOMINATIM_BASE_URL", geocoding.DefaultNominatimBaseURL),
		HTTPTimeout:       r.duration("HTTP_TIMEOUT", 30*time.Second),
		GeocodeRetries:    r.integer("GEOCODE_RETRIES", 3),
		CacheBackend:      CacheBackend(strings.ToLower(r.str("CACHE_BACKEND", string(CacheSQLite)))),
		SQLitePath:        r.str("SQLITE_PATH", ""),
		DistanceCachePath: r.str("DISTANCE_CACHE_PATH", ""),
		PostgresDSN:       r.str("POSTGRES_DSN", ""),
		RoadNetworkPath:   r.str("ROAD_NETWORK_PATH", ""),
		ExactThreshold:    r.integer("EXACT_THRESHOLD", tsp.DefaultExactThreshold),
		Genetic: tsp.GeneticConfig{
			PopulationSize: r.integer("GA_POPULATION", 200),
			Generations:    r.integer("GA_GENERATIONS", 1000),
			MutationRate:   r.float("GA_MUTATION_RATE", 0.02),
			TournamentSize: r.integer("GA_TOURNAMENT_SIZE", 5),
			EliteFraction:  r.float("GA_ELITE_FRACTION", 0.10),
			Seed:           r.uint("GA_SEED", 0),
		},
		FallbackSpeedKmh: r.float("FALLBACK_SPEED_KMH", matrix.DefaultSpeedKmh),
		CompassSectors:   r.integer("COMPASS_SECTORS", 8),
		TrafficSeed:      r.uint("TRAFFIC_SEED", 1),
		KafkaBrokers:     r.list("KAFKA_BROKERS"),
		KafkaTopic:       r.str("KAFKA_TOPIC", events.DefaultTopic),
		Archive: archive.Config{
			Endpoint:  r.str("MINIO_ENDPOINT", ""),
			AccessKey: r.str("MINIO_ACCESS_KEY", ""),
			SecretKey: r.str("MINIO_SECRET_KEY", ""),
			UseSSL:    r.boolean("MINIO_USE_SSL", false),
			Bucket:    r.str("MINIO_BUCKET", archive.DefaultBucket),
			Region:    r.str("MINIO_REGION", ""),
		},
	}

	rawMode := r.str("TRAFFIC_MODE", string(traffic.ModeNeutral))
	mode, err := traffic.ParseMode(rawMode)
	if err != nil {
		r.fail("TRAFFIC_MODE", rawMode, "must be one of neutral, simulated, graph")
	}
	cfg.TrafficMode = mode

	cfg.validate(r)
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

func (c *Config) validate(r *reader) {
	switch c.CacheBackend {
	case CacheSQLite, CacheFile, CacheMemory:
	case CachePostgres:
		if c.PostgresDSN == "" {
			r.fail("POSTGRES_DSN", "", "required when CACHE_BACKEND=postgres")
		}
	default:
		r.fail("CACHE_BACKEND", string(c.CacheBackend), "must be one of sqlite, file, postgres, memory")
	}

	if c.HTTPTimeout <= 0 {
		r.fail("HTTP_TIMEOUT", c.HTTPTimeout.String(), "must be positive")
	}
	if c.ExactThreshold < 1 || c.ExactThreshold > tsp.MaxExactSize {
		r.fail("EXACT_THRESHOLD", strconv.Itoa(c.ExactThreshold), fmt.Sprintf("must be within [1,%d]", tsp.MaxExactSize))
	}
	if err := c.Genetic.Validate(); err != nil {
		r.fail("GA_*", "", err.Error())
	}
	if c.FallbackSpeedKmh <= 0 {
		r.fail("FALLBACK_SPEED_KMH", strconv.FormatFloat(c.FallbackSpeedKmh, 'g', -1, 64), "must be positive")
	}
	if c.CompassSectors != 4 && c.CompassSectors != 8 {
		r.fail("COMPASS_SECTORS", strconv.Itoa(c.CompassSectors), "must be 4 or 8")
	}
	if c.Archive.Endpoint != "" && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		r.fail("MINIO_ACCESS_KEY", "", "credentials are required when MINIO_ENDPOINT is set")
	}
}

// KafkaEnabled reports whether route events should be published
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ArchiveEnabled reports whether routes should be archived to object storage
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Endpoint != ""
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) fail(key, value, reason string) {
	r.errs = append(r.errs, &ErrInvalidSetting{Key: key, Value: value, Reason: reason})
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "not an integer")
		return def
	}
	return n
}

func (r *reader) uint(key string, def uint64) uint64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.fail(key, v, "not an unsigned integer")
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "not a number")
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "not a boolean")
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "not a duration")
		return def
	}
	return d
}
