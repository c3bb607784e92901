package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-optimizer/internal/config"
	"route-optimizer/internal/sqlite"
)

// offlineConfig points every remote dependency at a closed local port
func offlineConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"SERVER_ADDR":        "127.0.0.1:0",
		"OSRM_BASE_URL":      "http://127.0.0.1:1",
		"NOMINATIM_BASE_URL": "http://127.0.0.1:1",
		"HTTP_TIMEOUT":       "1s",
		"GEOCODE_RETRIES":    "1",
		"CACHE_BACKEND":      "memory",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.FromLookup(func(key string) (string, bool) {
		v, ok := base[key]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)

	addr, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})
	return "http://" + addr
}

func TestServerHealthAndOptimize(t *testing.T) {
	base := startServer(t, offlineConfig(t, nil))

	resp, err := http.Get(base + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(map[string]interface{}{
		"start":        map[string]interface{}{"id": "home", "lat": 40.7128, "lng": -74.0060},
		"destinations": []interface{}{map[string]interface{}{"id": "museum", "lat": 40.7794, "lng": -73.9632}},
	})
	resp, err = http.Post(base+"/api/v1/routes/optimize", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var route struct {
		RouteID      string   `json:"route_id"`
		MatrixSource string   `json:"matrix_source"`
		Notices      []string `json:"notices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&route))
	assert.NotEmpty(t, route.RouteID)
	assert.Equal(t, "local", route.MatrixSource)
	assert.Len(t, route.Notices, 1)
}

func TestServerLoadsRoadNetwork(t *testing.T) {
	network := filepath.Join(t.TempDir(), "network.json")
	require.NoError(t, os.WriteFile(network, []byte(`{
		"locations": [
			{"id": "a", "name": "A", "lat": 0, "lng": 0},
			{"id": "b", "name": "B", "lat": 0, "lng": 0.01}
		],
		"roads": [{"from": "a", "to": "b", "distance_km": 1.5, "time_h": 0.05}]
	}`), 0600))

	base := startServer(t, offlineConfig(t, map[string]string{"ROAD_NETWORK_PATH": network}))

	body, _ := json.Marshal(map[string]string{"from": "a", "to": "b"})
	resp, err := http.Post(base+"/api/v1/paths/shortest", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var path struct {
		Found bool    `json:"found"`
		Cost  float64 `json:"cost"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&path))
	assert.True(t, path.Found)
	assert.InDelta(t, 1.5, path.Cost, 1e-9)
}

func TestNewFailsOnMissingRoadNetwork(t *testing.T) {
	_, err := New(context.Background(), offlineConfig(t, map[string]string{
		"ROAD_NETWORK_PATH": filepath.Join(t.TempDir(), "missing.json"),
	}))
	assert.Error(t, err)
}

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, offlineConfig(t, map[string]string{
		"CACHE_BACKEND": "sqlite",
		"SQLITE_PATH":   sqlite.MemoryPath,
	}))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.HealthCheck(ctx))
	require.NoError(t, store.Close())

	store, err = openStore(ctx, offlineConfig(t, map[string]string{
		"CACHE_BACKEND":       "file",
		"DISTANCE_CACHE_PATH": filepath.Join(t.TempDir(), "distances.json"),
	}))
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := corsMiddleware(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/routes/optimize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
