package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"route-optimizer/internal/models"
)

// DefaultNominatimBaseURL is the public OpenStreetMap Nominatim server
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// DefaultSearchLimit is the number of results requested when the caller gives none
const DefaultSearchLimit = 5

const userAgent = "RouteOptimizer/1.0"

// Geocoder turns free text into locations and coordinates into place names
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]models.Location, error)
	SearchWithRetry(ctx context.Context, query string, limit, maxRetries int) ([]models.Location, error)
	Reverse(ctx context.Context, lat, lng float64) (*models.Location, error)
}

// ErrGeocodingFailed is returned when a query cannot be geocoded
type ErrGeocodingFailed struct {
	Query  string
	Reason string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for query: %s - %s", e.Query, e.Reason)
}

type nominatimGeocoder struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *time.Ticker
}

type nominatimResponse struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
}

// toLocation parses the string coordinates Nominatim returns
func (r nominatimResponse) toLocation() (models.Location, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid latitude %q", r.Lat)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid longitude %q", r.Lon)
	}

	loc := models.Location{
		ID:   strconv.FormatInt(r.PlaceID, 10),
		Name: r.DisplayName,
		Lat:  lat,
		Lng:  lng,
	}
	if err := loc.Validate(); err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

// NewNominatimGeocoder creates a Nominatim geocoder limited to one request per
// second, the public server's usage policy
func NewNominatimGeocoder(baseURL string, timeout time.Duration) Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &nominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: time.NewTicker(1 * time.Second),
	}
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]models.Location, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=%d", g.baseURL, url.QueryEscape(query), limit)
	log.Printf("[GEOCODING] Search request: query=%s limit=%d", query, limit)

	var results []nominatimResponse
	if err := g.getJSON(ctx, queryURL, query, &results); err != nil {
		return nil, err
	}

	locations := make([]models.Location, 0, len(results))
	for _, result := range results {
		loc, err := result.toLocation()
		if err != nil {
			log.Printf("[ERROR] Invalid geocoding search result: query=%s place_id=%d err=%v", query, result.PlaceID, err)
			continue
		}
		locations = append(locations, loc)
	}

	log.Printf("[GEOCODING] Search response: query=%s results_count=%d", query, len(locations))
	return locations, nil
}

func (g *nominatimGeocoder) SearchWithRetry(ctx context.Context, query string, limit, maxRetries int) ([]models.Location, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		results, err := g.Search(ctx, query, limit)
		if err == nil {
			if i > 0 {
				log.Printf("[GEOCODING] Success after %d attempt(s): query=%s", i+1, query)
			}
			return results, nil
		}

		lastErr = err

		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Printf("[GEOCODING] Retry %d/%d: query=%s backoff=%v err=%v", i+1, maxRetries, query, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	log.Printf("[ERROR] Geocoding failed after %d retries: query=%s err=%v", maxRetries, query, lastErr)
	return nil, lastErr
}

func (g *nominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (*models.Location, error) {
	label := fmt.Sprintf("%.6f,%.6f", lat, lng)
	queryURL := fmt.Sprintf("%s/reverse?format=json&lat=%.6f&lon=%.6f", g.baseURL, lat, lng)
	log.Printf("[GEOCODING] Reverse request: lat=%.6f lng=%.6f", lat, lng)

	var result nominatimResponse
	if err := g.getJSON(ctx, queryURL, label, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &ErrGeocodingFailed{Query: label, Reason: result.Error}
	}
	if result.DisplayName == "" {
		return nil, &ErrGeocodingFailed{Query: label, Reason: "no results found"}
	}

	// The caller's coordinates are kept; only the name comes from the server
	loc := models.Location{
		ID:   strconv.FormatInt(result.PlaceID, 10),
		Name: result.DisplayName,
		Lat:  lat,
		Lng:  lng,
	}
	log.Printf("[GEOCODING] Reverse response: lat=%.6f lng=%.6f display_name=%s", lat, lng, loc.Name)
	return &loc, nil
}

func (g *nominatimGeocoder) getJSON(ctx context.Context, queryURL, query string, out any) error {
	select {
	case <-g.rateLimiter.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create geocoding request: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] Geocoding API request failed: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[ERROR] Geocoding API error: query=%s status=%d body=%s", query, resp.StatusCode, string(body))
		return &ErrGeocodingFailed{
			Query:  query,
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("[ERROR] Failed to decode geocoding response: query=%s err=%v", query, err)
		return &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	return nil
}
