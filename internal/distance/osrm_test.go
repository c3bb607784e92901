package distance

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

func ptr(v float64) *float64 { return &v }

func cells(rows [][]float64) [][]*float64 {
	out := make([][]*float64, len(rows))
	for i, row := range rows {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			out[i][j] = ptr(v)
		}
	}
	return out
}

func newTestCalculator(serverURL string, client *http.Client, cache database.DistanceCacheRepository) *osrmCalculator {
	return &osrmCalculator{
		baseURL:    serverURL,
		httpClient: client,
		cache:      cache,
	}
}

func TestGetDistanceMatrix_AllCached(t *testing.T) {
	cache := database.NewMemoryDistanceCache()

	points := []models.Coordinates{
		{Lat: 0, Lng: 0},
		{Lat: 0.1, Lng: 0},
		{Lat: 0, Lng: 0.1},
	}

	for i, p1 := range points {
		for j, p2 := range points {
			if i != j {
				cache.Set(context.Background(), &models.DistanceCacheEntry{
					Origin:         p1,
					Destination:    p2,
					DistanceMeters: float64((i+1)*1000 + j*100),
					DurationSecs:   float64((i+1)*60 + j*10),
				})
			}
		}
	}

	serverCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalled = true
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), cache)

	matrix, err := calc.GetDistanceMatrix(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if serverCalled {
		t.Error("server was called when all data should be cached")
	}
	if len(matrix) != 3 {
		t.Fatalf("expected 3x3 matrix, got %d rows", len(matrix))
	}
	for i := 0; i < 3; i++ {
		if matrix[i][i].DistanceMeters != 0 {
			t.Errorf("diagonal [%d][%d] should be 0, got %f", i, i, matrix[i][i].DistanceMeters)
		}
	}
	if matrix[0][1].DistanceMeters != 1100 {
		t.Errorf("expected matrix[0][1] = 1100, got %f", matrix[0][1].DistanceMeters)
	}
}

func TestGetDistanceMatrix_PartialCache(t *testing.T) {
	cache := database.NewMemoryDistanceCache()

	points := []models.Coordinates{
		{Lat: 0, Lng: 0},
		{Lat: 0.1, Lng: 0},
	}

	cache.Set(context.Background(), &models.DistanceCacheEntry{
		Origin:         points[0],
		Destination:    points[1],
		DistanceMeters: 5000,
		DurationSecs:   300,
	})

	apiCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalled = true
		json.NewEncoder(w).Encode(osrmTableResponse{
			Code:      "Ok",
			Distances: cells([][]float64{{0, 11100}, {11100, 0}}),
			Durations: cells([][]float64{{0, 600}, {600, 0}}),
		})
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), cache)

	matrix, err := calc.GetDistanceMatrix(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !apiCalled {
		t.Error("expected API to be called for missing pairs")
	}
	if matrix[0][1].DistanceMeters != 5000 {
		t.Errorf("expected cached matrix[0][1] = 5000, got %f", matrix[0][1].DistanceMeters)
	}
	if matrix[1][0].DistanceMeters != 11100 {
		t.Errorf("expected matrix[1][0] = 11100, got %f", matrix[1][0].DistanceMeters)
	}
	if cache.Count() != 2 {
		t.Errorf("expected 2 cached pairs after API call, got %d", cache.Count())
	}
}

func TestGetDistanceMatrix_NullCellIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(osrmTableResponse{
			Code:      "Ok",
			Distances: [][]*float64{{ptr(0), nil}, {ptr(900), ptr(0)}},
			Durations: [][]*float64{{ptr(0), nil}, {ptr(60), ptr(0)}},
		})
	}))
	defer server.Close()

	cache := database.NewMemoryDistanceCache()
	calc := newTestCalculator(server.URL, server.Client(), cache)

	points := []models.Coordinates{{Lat: 0, Lng: 0}, {Lat: 0.1, Lng: 0}}
	_, err := calc.GetDistanceMatrix(context.Background(), points)

	var calcErr *ErrDistanceCalculationFailed
	if !errors.As(err, &calcErr) {
		t.Fatalf("expected ErrDistanceCalculationFailed, got %v", err)
	}
	if cache.Count() != 0 {
		t.Errorf("incomplete matrix should not be cached, got %d entries", cache.Count())
	}
}

func TestGetDistanceMatrix_ErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(osrmTableResponse{Code: "InvalidQuery", Message: "bad coordinates"})
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	_, err := calc.GetDistanceMatrix(context.Background(), []models.Coordinates{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}})
	if err == nil || !strings.Contains(err.Error(), "InvalidQuery") {
		t.Fatalf("expected OSRM error code in error, got %v", err)
	}
}

func TestGetDistanceMatrix_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	_, err := calc.GetDistanceMatrix(context.Background(), []models.Coordinates{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}})
	if err == nil || !strings.Contains(err.Error(), "HTTP 429") {
		t.Fatalf("expected HTTP 429 error, got %v", err)
	}
}

func TestGetDistanceMatrix_BatchSplitting(t *testing.T) {
	numPoints := 85
	points := make([]models.Coordinates, numPoints)
	for i := 0; i < numPoints; i++ {
		points[i] = models.Coordinates{
			Lat: float64(i) * 0.01,
			Lng: float64(i) * 0.01,
		}
	}

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++

		// url.ParseQuery drops pairs containing ';', so read the raw query
		var rawSources, rawDests string
		for _, pair := range strings.Split(r.URL.RawQuery, "&") {
			if v, ok := strings.CutPrefix(pair, "sources="); ok {
				rawSources = v
			}
			if v, ok := strings.CutPrefix(pair, "destinations="); ok {
				rawDests = v
			}
		}
		if rawSources == "" || rawDests == "" {
			t.Error("expected scoped request with sources and destinations")
		}
		sources := strings.Split(rawSources, ";")
		dests := strings.Split(rawDests, ";")

		distances := make([][]*float64, len(sources))
		durations := make([][]*float64, len(sources))
		for i := range sources {
			distances[i] = make([]*float64, len(dests))
			durations[i] = make([]*float64, len(dests))
			for j := range dests {
				distances[i][j] = ptr(float64((i+j)*100 + 1000))
				durations[i][j] = ptr(float64((i+j)*10 + 60))
			}
		}

		json.NewEncoder(w).Encode(osrmTableResponse{
			Code:      "Ok",
			Distances: distances,
			Durations: durations,
		})
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	matrix, err := calc.GetDistanceMatrix(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matrix) != numPoints {
		t.Fatalf("expected %dx%d matrix, got %d rows", numPoints, numPoints, len(matrix))
	}

	// 85 points split into two batches gives four source x destination blocks
	if requestCount != 4 {
		t.Errorf("expected 4 requests for %d points (max %d per request), got %d",
			numPoints, maxOSRMCoordinates, requestCount)
	}

	for i := 0; i < numPoints; i++ {
		if matrix[i][i].DistanceMeters != 0 {
			t.Errorf("diagonal [%d][%d] should be 0, got %f", i, i, matrix[i][i].DistanceMeters)
		}
	}
	if matrix[84][0].DistanceMeters == 0 {
		t.Error("expected cross-batch cell [84][0] to be filled")
	}
}

func TestSplitBatches(t *testing.T) {
	batches := splitBatches(5, 2)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[2]) != 1 || batches[2][0] != 4 {
		t.Errorf("unexpected last batch %v", batches[2])
	}
}

func TestCoordinateRounding_Consistency(t *testing.T) {
	testCases := []struct {
		input    float64
		expected float64
	}{
		{0.123456789, 0.12346},
		{0.123454, 0.12345},
		{-0.123456, -0.12346},
		{0.0, 0.0},
		{1.0, 1.0},
		{0.000001, 0.0},
		{0.000009, 0.00001},
	}

	for _, tc := range testCases {
		t.Run("", func(t *testing.T) {
			result := models.RoundCoordinate(tc.input)
			if result != tc.expected {
				t.Errorf("RoundCoordinate(%v) = %v, expected %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestGetDistanceMatrix_SamePointSkipsServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for same point")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	// Points that round to the same value
	points := []models.Coordinates{
		{Lat: 0.123456, Lng: 0.654321},
		{Lat: 0.1234561, Lng: 0.6543211},
	}

	matrix, err := calc.GetDistanceMatrix(context.Background(), points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matrix[0][1].DistanceMeters != 0 || matrix[0][1].DurationSecs != 0 {
		t.Errorf("expected zero cost for same point, got %+v", matrix[0][1])
	}
}

func TestGetDistanceMatrix_Empty(t *testing.T) {
	calc := newTestCalculator("http://not-called", http.DefaultClient, database.NewMemoryDistanceCache())

	matrix, err := calc.GetDistanceMatrix(context.Background(), []models.Coordinates{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matrix) != 0 {
		t.Errorf("expected empty matrix, got %d elements", len(matrix))
	}
}

func TestGetDistanceMatrix_SinglePoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for a single point")
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	matrix, err := calc.GetDistanceMatrix(context.Background(), []models.Coordinates{{Lat: 0.1, Lng: 0.1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matrix) != 1 || len(matrix[0]) != 1 {
		t.Fatalf("expected 1x1 matrix, got %d rows", len(matrix))
	}
}

func TestGetMatrix_ConvertsUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(osrmTableResponse{
			Code:      "Ok",
			Distances: cells([][]float64{{0, 12500}, {13000, 0}}),
			Durations: cells([][]float64{{0, 900}, {1800, 0}}),
		})
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())
	locs := []models.Location{
		{ID: "a", Lat: 40.7128, Lng: -74.0060},
		{ID: "b", Lat: 40.7589, Lng: -73.9851},
	}

	km, err := calc.GetMatrix(context.Background(), locs, models.ObjectiveDistance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if km[0][1] != 12.5 || km[1][0] != 13 {
		t.Errorf("unexpected km matrix %v", km)
	}

	// Second call is served from the cache
	hours, err := calc.GetMatrix(context.Background(), locs, models.ObjectiveTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(hours[0][1]-0.25) > 1e-12 || math.Abs(hours[1][0]-0.5) > 1e-12 {
		t.Errorf("unexpected hours matrix %v", hours)
	}
}

func TestGetLegRoute(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 5400,
				"duration": 720,
				"legs": [{"steps": [{"name": "Broadway", "maneuver": {"type": "depart", "modifier": "left", "instruction": " Head north on Broadway "}}]}]
			}]
		}`))
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())
	from := models.Location{ID: "a", Lat: 40.7128, Lng: -74.0060}
	to := models.Location{ID: "b", Lat: 40.7589, Lng: -73.9851}

	leg, err := calc.GetLegRoute(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/route/v1/driving/-74.006000,40.712800;-73.985100,40.758900" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "steps=true") {
		t.Errorf("expected steps=true in query %q", gotQuery)
	}
	if leg.DistanceKm != 5.4 || leg.DurationHours != 0.2 {
		t.Errorf("unexpected leg %+v", leg)
	}
	if leg.Instruction != "Head north on Broadway" {
		t.Errorf("unexpected instruction %q", leg.Instruction)
	}
}

func TestGetLegRoute_ComposesInstruction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 1200,
				"duration": 180,
				"legs": [{"steps": [{"name": "Main Street", "maneuver": {"type": "turn", "modifier": "left"}}]}]
			}]
		}`))
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	leg, err := calc.GetLegRoute(context.Background(), models.Location{ID: "a"}, models.Location{ID: "b", Lat: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if leg.Instruction != "Turn left onto Main Street" {
		t.Errorf("unexpected instruction %q", leg.Instruction)
	}
}

func TestOSRMStepInstruction(t *testing.T) {
	tests := []struct {
		kind, modifier, name string
		want                 string
	}{
		{"depart", "", "Broadway", "Head on Broadway"},
		{"arrive", "right", "Elm Street", "Arrive on Elm Street"},
		{"end of road", "right", "", "Turn right"},
		{"fork", "slight left", "I-95", "Keep slight left onto I-95"},
		{"notification", "", "", "Notification"},
		{"", "left", "Oak Avenue", ""},
	}

	for _, tt := range tests {
		var step osrmStep
		step.Name = tt.name
		step.Maneuver.Type = tt.kind
		step.Maneuver.Modifier = tt.modifier
		if got := step.instruction(); got != tt.want {
			t.Errorf("instruction(%q, %q, %q) = %q, want %q", tt.kind, tt.modifier, tt.name, got, tt.want)
		}
	}
}

func TestGetLegRoute_NoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer server.Close()

	calc := newTestCalculator(server.URL, server.Client(), database.NewMemoryDistanceCache())

	_, err := calc.GetLegRoute(context.Background(), models.Location{ID: "a"}, models.Location{ID: "b", Lat: 1})
	var calcErr *ErrDistanceCalculationFailed
	if !errors.As(err, &calcErr) {
		t.Fatalf("expected ErrDistanceCalculationFailed, got %v", err)
	}
}

func TestNewOSRMCalculator_Defaults(t *testing.T) {
	calc := NewOSRMCalculator("", 0, nil).(*osrmCalculator)
	if calc.baseURL != DefaultOSRMBaseURL {
		t.Errorf("expected default base URL, got %q", calc.baseURL)
	}
	if calc.cache == nil {
		t.Error("expected default in-memory cache")
	}

	calc = NewOSRMCalculator("http://osrm.local/", 0, nil).(*osrmCalculator)
	if calc.baseURL != "http://osrm.local" {
		t.Errorf("expected trailing slash trimmed, got %q", calc.baseURL)
	}
}
