package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

// DefaultOSRMBaseURL is the public OSRM demo server
const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// DistanceResult contains the result of a distance calculation
type DistanceResult struct {
	DistanceMeters float64
	DurationSecs   float64
}

// LegRoute is a detailed single-leg route
type LegRoute struct {
	DistanceKm    float64
	DurationHours float64
	// Instruction is the first maneuver text reported by the router, if any
	Instruction string
}

// MatrixProvider supplies the pairwise cost matrix for a set of locations.
// Costs are km for the distance objective and hours for the time objective.
// A partial matrix is reported as an error, never returned.
type MatrixProvider interface {
	GetMatrix(ctx context.Context, locations []models.Location, objective models.Objective) ([][]float64, error)
}

// RouteGeometryProvider supplies a detailed route for a single leg
type RouteGeometryProvider interface {
	GetLegRoute(ctx context.Context, from, to models.Location) (*LegRoute, error)
}

// Calculator is the remote routing service used by the optimizer
type Calculator interface {
	MatrixProvider
	RouteGeometryProvider
	GetDistanceMatrix(ctx context.Context, points []models.Coordinates) ([][]DistanceResult, error)
}

// ErrDistanceCalculationFailed is returned when OSRM API fails
type ErrDistanceCalculationFailed struct {
	Origin models.Coordinates
	Dest   models.Coordinates
	Reason string
}

func (e *ErrDistanceCalculationFailed) Error() string {
	return fmt.Sprintf("distance calculation failed: %s", e.Reason)
}

type osrmCalculator struct {
	baseURL    string
	httpClient *http.Client
	cache      database.DistanceCacheRepository
	batchDelay time.Duration
}

// Null cells (unroutable pairs) decode as nil
type osrmTableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message,omitempty"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

type osrmRouteResponse struct {
	Code   string      `json:"code"`
	Routes []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Legs     []struct {
		Steps []osrmStep `json:"steps"`
	} `json:"legs"`
}

type osrmStep struct {
	Name     string `json:"name"`
	Maneuver struct {
		Type        string `json:"type"`
		Modifier    string `json:"modifier"`
		Instruction string `json:"instruction"`
	} `json:"maneuver"`
}

var maneuverVerbs = map[string]string{
	"depart":      "Head",
	"arrive":      "Arrive",
	"turn":        "Turn",
	"new name":    "Continue",
	"continue":    "Continue",
	"merge":       "Merge",
	"on ramp":     "Take the ramp",
	"off ramp":    "Take the exit",
	"fork":        "Keep",
	"end of road": "Turn",
	"roundabout":  "Enter the roundabout",
	"rotary":      "Enter the rotary",
}

// instruction returns the server's text for the step, or one composed from
// the maneuver type, modifier and road name when the server sends none
func (s osrmStep) instruction() string {
	if text := strings.TrimSpace(s.Maneuver.Instruction); text != "" {
		return text
	}
	kind := strings.TrimSpace(s.Maneuver.Type)
	if kind == "" {
		return ""
	}

	verb, ok := maneuverVerbs[kind]
	if !ok {
		verb = strings.ToUpper(kind[:1]) + kind[1:]
	}
	parts := []string{verb}
	if mod := strings.TrimSpace(s.Maneuver.Modifier); mod != "" && kind != "arrive" {
		parts = append(parts, mod)
	}
	if name := strings.TrimSpace(s.Name); name != "" {
		if kind == "depart" || kind == "arrive" {
			parts = append(parts, "on", name)
		} else {
			parts = append(parts, "onto", name)
		}
	}
	return strings.Join(parts, " ")
}

// NewOSRMCalculator creates a new OSRM calculator with caching. An empty
// baseURL selects the public demo server.
func NewOSRMCalculator(baseURL string, timeout time.Duration, cache database.DistanceCacheRepository) Calculator {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cache == nil {
		cache = database.NewMemoryDistanceCache()
	}
	return &osrmCalculator{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:      cache,
		batchDelay: 100 * time.Millisecond,
	}
}

func samePoint(a, b models.Coordinates) bool {
	return models.RoundCoordinate(a.Lat) == models.RoundCoordinate(b.Lat) &&
		models.RoundCoordinate(a.Lng) == models.RoundCoordinate(b.Lng)
}

// GetMatrix fetches the full matrix and converts it to the objective's unit
func (c *osrmCalculator) GetMatrix(ctx context.Context, locations []models.Location, objective models.Objective) ([][]float64, error) {
	points := make([]models.Coordinates, len(locations))
	for i, loc := range locations {
		points[i] = loc.GetCoords()
	}

	raw, err := c.GetDistanceMatrix(ctx, points)
	if err != nil {
		return nil, err
	}

	matrix := make([][]float64, len(raw))
	for i, row := range raw {
		matrix[i] = make([]float64, len(row))
		for j, cell := range row {
			if objective == models.ObjectiveTime {
				matrix[i][j] = cell.DurationSecs / 3600
			} else {
				matrix[i][j] = cell.DistanceMeters / 1000
			}
		}
	}
	return matrix, nil
}

// maxOSRMCoordinates is the maximum number of coordinates OSRM public API accepts
const maxOSRMCoordinates = 80

// GetDistanceMatrix returns every pairwise distance and duration, serving
// cached pairs locally and requesting the rest from OSRM. Every off-diagonal
// cell between distinct points must be filled or the call fails.
func (c *osrmCalculator) GetDistanceMatrix(ctx context.Context, points []models.Coordinates) ([][]DistanceResult, error) {
	n := len(points)
	if n == 0 {
		return [][]DistanceResult{}, nil
	}

	matrix := make([][]DistanceResult, n)
	filled := make([][]bool, n)
	for i := range matrix {
		matrix[i] = make([]DistanceResult, n)
		filled[i] = make([]bool, n)
	}

	missing := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || samePoint(points[i], points[j]) {
				filled[i][j] = true
				continue
			}

			cached, err := c.cache.Get(ctx, points[i], points[j])
			if err != nil {
				return nil, err
			}
			if cached != nil {
				matrix[i][j] = DistanceResult{
					DistanceMeters: cached.DistanceMeters,
					DurationSecs:   cached.DurationSecs,
				}
				filled[i][j] = true
			} else {
				missing++
			}
		}
	}

	if missing == 0 {
		log.Printf("[OSRM] Distance matrix all cached: points=%d", n)
		return matrix, nil
	}

	log.Printf("[OSRM] Distance matrix request: points=%d cached=%d missing=%d", n, n*n-missing, missing)

	batches := splitBatches(n, maxOSRMCoordinates)
	if len(batches) > 1 {
		log.Printf("[OSRM] Using batched requests: points=%d batches=%d", n, len(batches))
	}

	var cacheEntries []models.DistanceCacheEntry
	requests := 0
	for _, sources := range batches {
		for _, destinations := range batches {
			if requests > 0 && c.batchDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.batchDelay):
				}
			}

			entries, err := c.fetchTable(ctx, points, sources, destinations, len(batches) > 1, matrix, filled)
			if err != nil {
				return nil, err
			}
			cacheEntries = append(cacheEntries, entries...)
			requests++
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !filled[i][j] {
				log.Printf("[ERROR] OSRM matrix incomplete: points=%d missing=[%d][%d]", n, i, j)
				return nil, &ErrDistanceCalculationFailed{
					Origin: points[i],
					Dest:   points[j],
					Reason: "incomplete matrix: no route between points",
				}
			}
		}
	}

	log.Printf("[OSRM] Distance matrix complete: points=%d requests=%d entries=%d", n, requests, len(cacheEntries))

	if len(cacheEntries) > 0 {
		if err := c.cache.SetBatch(ctx, cacheEntries); err != nil {
			log.Printf("[WARN] Failed to cache OSRM results: entries=%d err=%v", len(cacheEntries), err)
		}
	}

	return matrix, nil
}

func splitBatches(n, size int) [][]int {
	var batches [][]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		batch := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, i)
		}
		batches = append(batches, batch)
	}
	return batches
}

// fetchTable requests the sources x destinations block of the matrix. When
// scoped is false the request covers all points without index parameters.
func (c *osrmCalculator) fetchTable(ctx context.Context, points []models.Coordinates, sources, destinations []int, scoped bool, matrix [][]DistanceResult, filled [][]bool) ([]models.DistanceCacheEntry, error) {
	// Union of both index sets, sources first
	local := make(map[int]int, len(sources)+len(destinations))
	var order []int
	for _, idx := range append(append([]int{}, sources...), destinations...) {
		if _, ok := local[idx]; !ok {
			local[idx] = len(order)
			order = append(order, idx)
		}
	}

	coords := make([]string, len(order))
	for i, idx := range order {
		coords[i] = fmt.Sprintf("%.6f,%.6f", points[idx].Lng, points[idx].Lat)
	}

	queryURL := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration", c.baseURL, strings.Join(coords, ";"))
	if scoped {
		queryURL += "&sources=" + joinIndices(sources, local) + "&destinations=" + joinIndices(destinations, local)
	}

	var osrmResp osrmTableResponse
	if err := c.getJSON(ctx, queryURL, &osrmResp); err != nil {
		log.Printf("[ERROR] OSRM table request failed: points=%d err=%v", len(order), err)
		return nil, err
	}
	if osrmResp.Code != "Ok" {
		log.Printf("[ERROR] OSRM returned error code: points=%d code=%s", len(order), osrmResp.Code)
		return nil, &ErrDistanceCalculationFailed{Reason: fmt.Sprintf("OSRM error: %s %s", osrmResp.Code, osrmResp.Message)}
	}

	rowIndex := func(k int) int {
		if scoped {
			return k
		}
		return local[sources[k]]
	}
	colIndex := func(k int) int {
		if scoped {
			return k
		}
		return local[destinations[k]]
	}

	var entries []models.DistanceCacheEntry
	for si, src := range sources {
		r := rowIndex(si)
		if r >= len(osrmResp.Distances) || r >= len(osrmResp.Durations) {
			continue
		}
		for di, dst := range destinations {
			if filled[src][dst] {
				continue
			}
			col := colIndex(di)
			if col >= len(osrmResp.Distances[r]) || col >= len(osrmResp.Durations[r]) {
				continue
			}
			dist, dur := osrmResp.Distances[r][col], osrmResp.Durations[r][col]
			if dist == nil || dur == nil || *dist <= 0 {
				continue
			}
			matrix[src][dst] = DistanceResult{DistanceMeters: *dist, DurationSecs: *dur}
			filled[src][dst] = true
			entries = append(entries, models.DistanceCacheEntry{
				Origin:         points[src],
				Destination:    points[dst],
				DistanceMeters: *dist,
				DurationSecs:   *dur,
			})
		}
	}
	return entries, nil
}

func joinIndices(indices []int, local map[int]int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(local[idx])
	}
	return strings.Join(parts, ";")
}

// GetLegRoute requests a detailed route for one leg. The instruction
// describes the first maneuver.
func (c *osrmCalculator) GetLegRoute(ctx context.Context, from, to models.Location) (*LegRoute, error) {
	queryURL := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false&steps=true",
		c.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)

	var osrmResp osrmRouteResponse
	if err := c.getJSON(ctx, queryURL, &osrmResp); err != nil {
		log.Printf("[ERROR] OSRM route request failed: from=%s to=%s err=%v", from.ID, to.ID, err)
		return nil, err
	}
	if osrmResp.Code != "Ok" || len(osrmResp.Routes) == 0 {
		return nil, &ErrDistanceCalculationFailed{
			Origin: from.GetCoords(),
			Dest:   to.GetCoords(),
			Reason: fmt.Sprintf("OSRM route error: code=%s routes=%d", osrmResp.Code, len(osrmResp.Routes)),
		}
	}

	route := osrmResp.Routes[0]
	leg := &LegRoute{
		DistanceKm:    route.Distance / 1000,
		DurationHours: route.Duration / 3600,
	}
	if len(route.Legs) > 0 && len(route.Legs[0].Steps) > 0 {
		leg.Instruction = route.Legs[0].Steps[0].instruction()
	}

	log.Printf("[OSRM] Leg route: from=%s to=%s distance=%.3fkm duration=%.3fh", from.ID, to.ID, leg.DistanceKm, leg.DurationHours)
	return leg, nil
}

func (c *osrmCalculator) getJSON(ctx context.Context, queryURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return &ErrDistanceCalculationFailed{Reason: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ErrDistanceCalculationFailed{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ErrDistanceCalculationFailed{
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ErrDistanceCalculationFailed{Reason: err.Error()}
	}
	return nil
}
