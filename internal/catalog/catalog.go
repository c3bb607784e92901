// Package catalog is the read-only set of sample locations offered when no
// live geocoder answers. It is safe for concurrent use.
package catalog

import (
	"strings"

	"route-optimizer/internal/models"
)

var samples = []models.Location{
	{ID: "sample-downtown", Name: "Downtown", Lat: 40.7128, Lng: -74.0060},
	{ID: "sample-airport", Name: "Airport", Lat: 40.6892, Lng: -74.1745},
	{ID: "sample-mall", Name: "Mall", Lat: 40.7589, Lng: -73.9851},
	{ID: "sample-hospital", Name: "Hospital", Lat: 40.7282, Lng: -73.7949},
	{ID: "sample-university", Name: "University", Lat: 40.8176, Lng: -73.7781},
	{ID: "sample-stadium", Name: "Stadium", Lat: 40.8296, Lng: -73.9262},
	{ID: "sample-beach", Name: "Beach", Lat: 40.5795, Lng: -73.9707},
	{ID: "sample-park", Name: "Park", Lat: 40.7794, Lng: -73.9632},
}

// All returns a copy of every sample location
func All() []models.Location {
	out := make([]models.Location, len(samples))
	copy(out, samples)
	return out
}

// Search returns the samples whose name contains query, ignoring case. An
// empty query matches everything.
func Search(query string) []models.Location {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return All()
	}

	var out []models.Location
	for _, loc := range samples {
		if strings.Contains(strings.ToLower(loc.Name), q) {
			out = append(out, loc)
		}
	}
	return out
}
