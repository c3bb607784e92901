package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"route-optimizer/internal/catalog"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/models"
)

const maxSearchLimit = 20

// HandleLocationSearch handles GET /api/v1/locations/search
func (h *Handler) HandleLocationSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	limit := geocoding.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.handleValidationError(w, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxSearchLimit)
	}

	var results []models.Location
	if h.Geocoder != nil {
		results = h.Geocoder.Search(r.Context(), query, limit)
	} else {
		results = catalog.Search(query)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	log.Printf("[HTTP] GET /api/v1/locations/search: query=%s results_count=%d", query, len(results))
	h.writeJSON(w, http.StatusOK, results)
}

// HandleReverseGeocode handles GET /api/v1/locations/reverse
func (h *Handler) HandleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)

	details := map[string]string{}
	if latErr != nil || h.validate.Var(lat, "latitude") != nil {
		details["lat"] = "latitude"
	}
	if lngErr != nil || h.validate.Var(lng, "longitude") != nil {
		details["lng"] = "longitude"
	}
	if len(details) > 0 {
		h.handleValidationError(w, "lat and lng must be valid coordinates", details)
		return
	}

	var loc models.Location
	if h.Geocoder != nil {
		loc = h.Geocoder.Reverse(r.Context(), lat, lng)
	} else {
		loc = geocoding.NewFallback(nil, 0).Reverse(r.Context(), lat, lng)
	}
	h.writeJSON(w, http.StatusOK, loc)
}

// HandleSampleLocations handles GET /api/v1/locations/samples
func (h *Handler) HandleSampleLocations(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, catalog.All())
}
