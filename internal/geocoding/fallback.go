package geocoding

import (
	"context"
	"fmt"
	"log"

	"route-optimizer/internal/catalog"
	"route-optimizer/internal/models"
)

// Fallback answers from the sample catalog whenever the wrapped geocoder fails
// or finds nothing. Search and Reverse never return an error.
type Fallback struct {
	geocoder   Geocoder
	maxRetries int
}

// NewFallback wraps g. A nil g serves the catalog only.
func NewFallback(g Geocoder, maxRetries int) *Fallback {
	return &Fallback{geocoder: g, maxRetries: maxRetries}
}

// Search returns live results, or catalog matches for query. An empty query
// lists the whole catalog without contacting the geocoder.
func (f *Fallback) Search(ctx context.Context, query string, limit int) []models.Location {
	if query == "" || f.geocoder == nil {
		return catalog.Search(query)
	}

	results, err := f.geocoder.SearchWithRetry(ctx, query, limit, f.maxRetries)
	if err == nil && len(results) > 0 {
		return results
	}
	if err != nil {
		log.Printf("[WARN] Geocoding unavailable, searching sample catalog: query=%s err=%v", query, err)
	}
	return catalog.Search(query)
}

// Reverse names the given point. Without a live answer the name is the
// coordinate pair itself.
func (f *Fallback) Reverse(ctx context.Context, lat, lng float64) models.Location {
	if f.geocoder != nil {
		loc, err := f.geocoder.Reverse(ctx, lat, lng)
		if err == nil {
			return *loc
		}
		log.Printf("[WARN] Reverse geocoding unavailable: lat=%.6f lng=%.6f err=%v", lat, lng, err)
	}
	return models.NewLocation(fmt.Sprintf("%.5f, %.5f", lat, lng), lat, lng)
}
