// Package graph holds the undirected road network used for point-to-point
// queries and as the local source of leg costs.
//
// A GeoGraph is mutated only through AddLocation and AddEdge while it is being
// built. After construction it is read-only and safe for concurrent readers.
package graph

import (
	"route-optimizer/internal/geo"
	"route-optimizer/internal/models"
)

// GeoGraph maps location ids to locations and to their outgoing edges
type GeoGraph struct {
	locations map[string]models.Location
	adjacency map[string][]models.Edge
}

// New creates an empty graph
func New() *GeoGraph {
	return &GeoGraph{
		locations: make(map[string]models.Location),
		adjacency: make(map[string][]models.Edge),
	}
}

// AddLocation inserts a location keyed by id. Re-adding an id replaces the
// stored location but keeps its edges.
func (g *GeoGraph) AddLocation(loc models.Location) {
	g.locations[loc.ID] = loc
	if _, ok := g.adjacency[loc.ID]; !ok {
		g.adjacency[loc.ID] = []models.Edge{}
	}
}

// AddEdge inserts e and its mirrored reverse edge. Endpoints are not validated.
func (g *GeoGraph) AddEdge(e models.Edge) {
	g.adjacency[e.From] = append(g.adjacency[e.From], e)
	g.adjacency[e.To] = append(g.adjacency[e.To], e.Reversed())
}

// Neighbors returns the outgoing edges of id in insertion order, or an empty
// slice if the id is unknown. The returned slice must not be modified.
func (g *GeoGraph) Neighbors(id string) []models.Edge {
	edges, ok := g.adjacency[id]
	if !ok {
		return []models.Edge{}
	}
	return edges
}

// Edge returns the first edge from -> to, if any
func (g *GeoGraph) Edge(from, to string) (models.Edge, bool) {
	for _, e := range g.adjacency[from] {
		if e.To == to {
			return e, true
		}
	}
	return models.Edge{}, false
}

// LocationByID looks up a location
func (g *GeoGraph) LocationByID(id string) (models.Location, bool) {
	loc, ok := g.locations[id]
	return loc, ok
}

// HasLocation reports whether id is a known location
func (g *GeoGraph) HasLocation(id string) bool {
	_, ok := g.locations[id]
	return ok
}

// Locations returns all locations, in no particular order
func (g *GeoGraph) Locations() []models.Location {
	result := make([]models.Location, 0, len(g.locations))
	for _, loc := range g.locations {
		result = append(result, loc)
	}
	return result
}

// Size returns the number of known locations
func (g *GeoGraph) Size() int {
	return len(g.locations)
}

// Distance returns the great-circle distance in km between two locations.
// It is a heuristic and fallback cost, not the road cost.
func (g *GeoGraph) Distance(a, b models.Location) float64 {
	return geo.Distance(a, b)
}
