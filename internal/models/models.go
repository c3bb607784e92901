package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds to 5 decimal places (~1m), the precision used for cache keys
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// Location is an immutable stop identity. It is a plain value and safe to copy.
type Location struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// NewLocation creates a location with a freshly generated id
func NewLocation(name string, lat, lng float64) Location {
	return Location{
		ID:   uuid.NewString(),
		Name: name,
		Lat:  lat,
		Lng:  lng,
	}
}

// GetCoords returns the coordinates of the location
func (l Location) GetCoords() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

// Validate checks the coordinate ranges
func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90 {
		return &ErrInvalidCoordinate{Field: "lat", Value: l.Lat}
	}
	if math.IsNaN(l.Lng) || l.Lng < -180 || l.Lng > 180 {
		return &ErrInvalidCoordinate{Field: "lng", Value: l.Lng}
	}
	return nil
}

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range
type ErrInvalidCoordinate struct {
	Field string
	Value float64
}

func (e *ErrInvalidCoordinate) Error() string {
	return fmt.Sprintf("invalid %s: %v out of range", e.Field, e.Value)
}

// DefaultTrafficMultiplier is the neutral traffic multiplier
const DefaultTrafficMultiplier = 1.0

// Edge is a directed road segment between two location ids
type Edge struct {
	From              string  `json:"from"`
	To                string  `json:"to"`
	DistanceKm        float64 `json:"distance_km"`
	TimeHours         float64 `json:"time_h"`
	TrafficMultiplier float64 `json:"traffic_multiplier"`
}

// Reversed returns the mirrored edge with identical scalar values
func (e Edge) Reversed() Edge {
	return Edge{
		From:              e.To,
		To:                e.From,
		DistanceKm:        e.DistanceKm,
		TimeHours:         e.TimeHours,
		TrafficMultiplier: e.TrafficMultiplier,
	}
}

// Multiplier returns the traffic multiplier, treating unset or sub-neutral values as 1.0
func (e Edge) Multiplier() float64 {
	if e.TrafficMultiplier < DefaultTrafficMultiplier {
		return DefaultTrafficMultiplier
	}
	return e.TrafficMultiplier
}

// TrafficTime is the base travel time weighted by traffic
func (e Edge) TrafficTime() float64 {
	return e.TimeHours * e.Multiplier()
}

// Objective is the scalar being minimized
type Objective string

const (
	ObjectiveDistance Objective = "distance"
	ObjectiveTime     Objective = "time"
)

// ParseObjective parses an objective name, defaulting to distance for an empty string
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ObjectiveDistance):
		return ObjectiveDistance, nil
	case string(ObjectiveTime):
		return ObjectiveTime, nil
	default:
		return "", fmt.Errorf("unknown objective %q", s)
	}
}

// Unit returns the unit of costs measured under this objective
func (o Objective) Unit() string {
	if o == ObjectiveTime {
		return "h"
	}
	return "km"
}

// Step and matrix sources
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// RouteStep is a single leg of an optimized route
type RouteStep struct {
	From              Location `json:"from"`
	To                Location `json:"to"`
	DistanceKm        float64  `json:"distance_km"`
	TimeHours         float64  `json:"time_h"`
	TrafficMultiplier float64  `json:"traffic_multiplier"`
	Instruction       string   `json:"instruction"`
	Source            string   `json:"source"`
}

// OptimizedRoute is the result of one optimization run. It is superseded, never mutated.
type OptimizedRoute struct {
	Locations       []Location  `json:"locations"`
	TotalDistanceKm float64     `json:"total_distance_km"`
	TotalTimeHours  float64     `json:"total_time_h"`
	Steps           []RouteStep `json:"steps"`
	Objective       Objective   `json:"objective"`
	Solver          string      `json:"solver"`
	MatrixSource    string      `json:"matrix_source"`
	Notices         []string    `json:"notices"`
	ComputedAt      time.Time   `json:"computed_at"`
}

// DistanceCacheEntry represents a cached distance lookup
type DistanceCacheEntry struct {
	Origin         Coordinates `json:"origin"`
	Destination    Coordinates `json:"destination"`
	DistanceMeters float64     `json:"distance_meters"`
	DurationSecs   float64     `json:"duration_secs"`
}

// RouteRecord is a persisted summary of an optimized route
type RouteRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id,omitempty"`
	Objective       Objective `json:"objective"`
	Solver          string    `json:"solver"`
	MatrixSource    string    `json:"matrix_source"`
	StopCount       int       `json:"stop_count"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	TotalTimeHours  float64   `json:"total_time_h"`
	Payload         []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
