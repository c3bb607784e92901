// Package pathfinding implements single-pair shortest path search over a
// GeoGraph: Dijkstra with a caller-selected edge cost, and A* guided by the
// haversine distance to the goal.
//
// Both searches share one failure contract. An unreachable goal or an
// endpoint missing from the graph yields an empty path. The Strict variants
// additionally report missing endpoints as ErrUnknownLocation, so callers can
// tell a contract violation apart from a legitimate "no route" outcome.
//
// Every call owns its frontier, distance and predecessor tables; an Engine
// holds nothing mutable and may be shared across goroutines.
package pathfinding

import (
	"errors"
	"fmt"
	"math"

	"route-optimizer/internal/geo"
	"route-optimizer/internal/graph"
	"route-optimizer/internal/models"
)

// ErrUnknownLocation is returned by the Strict searches for an id absent from the graph
var ErrUnknownLocation = errors.New("unknown location")

// CostSelector picks the scalar cost of traversing an edge
type CostSelector func(e models.Edge) float64

// DistanceCost selects the raw edge distance in km
func DistanceCost(e models.Edge) float64 { return e.DistanceKm }

// TimeCost selects base time weighted by the edge traffic multiplier, in hours
func TimeCost(e models.Edge) float64 { return e.TrafficTime() }

// SelectorFor returns the cost selector for an objective
func SelectorFor(objective models.Objective) CostSelector {
	if objective == models.ObjectiveTime {
		return TimeCost
	}
	return DistanceCost
}

// Engine runs searches over a read-only graph
type Engine struct {
	graph *graph.GeoGraph
}

// NewEngine creates a search engine for g
func NewEngine(g *graph.GeoGraph) *Engine {
	return &Engine{graph: g}
}

// Graph returns the graph searched by the engine
func (e *Engine) Graph() *graph.GeoGraph {
	return e.graph
}

// ShortestPath runs Dijkstra from startID to endID and returns the ids along
// the path, both endpoints included. The search stops as soon as the goal is
// popped from the frontier.
func (e *Engine) ShortestPath(startID, endID string, cost CostSelector) []string {
	if !e.graph.HasLocation(startID) || !e.graph.HasLocation(endID) {
		return []string{}
	}
	if cost == nil {
		cost = DistanceCost
	}

	dist := map[string]float64{startID: 0}
	prev := make(map[string]string)
	closed := make(map[string]bool)

	var open frontier
	open.push(startID, 0)

	for !open.empty() {
		current := open.pop()
		if closed[current.id] {
			continue
		}
		closed[current.id] = true

		if current.id == endID {
			return reconstructPath(prev, startID, endID)
		}

		for _, edge := range e.graph.Neighbors(current.id) {
			if closed[edge.To] {
				continue
			}
			candidate := dist[current.id] + cost(edge)
			if known, ok := dist[edge.To]; !ok || candidate < known {
				dist[edge.To] = candidate
				prev[edge.To] = current.id
				open.push(edge.To, candidate)
			}
		}
	}

	return []string{}
}

// FindPath runs A* from startID to goalID over edge distances, using the
// haversine distance to the goal as heuristic. Optimality holds when every
// edge distance is at least the great-circle distance between its endpoints.
func (e *Engine) FindPath(startID, goalID string) []string {
	start, ok := e.graph.LocationByID(startID)
	if !ok {
		return []string{}
	}
	goal, ok := e.graph.LocationByID(goalID)
	if !ok {
		return []string{}
	}

	gScore := map[string]float64{startID: 0}
	prev := make(map[string]string)
	closed := make(map[string]bool)

	var open frontier
	open.push(startID, geo.Distance(start, goal))

	for !open.empty() {
		current := open.pop()
		if closed[current.id] {
			continue
		}
		if current.id == goalID {
			return reconstructPath(prev, startID, goalID)
		}
		closed[current.id] = true

		for _, edge := range e.graph.Neighbors(current.id) {
			if closed[edge.To] {
				continue
			}
			neighbor, ok := e.graph.LocationByID(edge.To)
			if !ok {
				// Edge into a node the graph does not know; it cannot be scored
				continue
			}
			tentative := gScore[current.id] + edge.DistanceKm
			if known, ok := gScore[edge.To]; !ok || tentative < known {
				gScore[edge.To] = tentative
				prev[edge.To] = current.id
				open.push(edge.To, tentative+geo.Distance(neighbor, goal))
			}
		}
	}

	return []string{}
}

// ShortestPathStrict is ShortestPath with unknown endpoints reported as errors
func (e *Engine) ShortestPathStrict(startID, endID string, cost CostSelector) ([]string, error) {
	if err := e.checkEndpoints(startID, endID); err != nil {
		return nil, err
	}
	return e.ShortestPath(startID, endID, cost), nil
}

// FindPathStrict is FindPath with unknown endpoints reported as errors
func (e *Engine) FindPathStrict(startID, goalID string) ([]string, error) {
	if err := e.checkEndpoints(startID, goalID); err != nil {
		return nil, err
	}
	return e.FindPath(startID, goalID), nil
}

func (e *Engine) checkEndpoints(ids ...string) error {
	for _, id := range ids {
		if !e.graph.HasLocation(id) {
			return fmt.Errorf("%w: %s", ErrUnknownLocation, id)
		}
	}
	return nil
}

// PathCost sums cost along consecutive path edges, taking the cheapest edge
// between each pair. It returns false if the path uses a missing edge or is
// empty.
func (e *Engine) PathCost(path []string, cost CostSelector) (float64, bool) {
	if len(path) == 0 {
		return 0, false
	}
	if cost == nil {
		cost = DistanceCost
	}

	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		best := math.Inf(1)
		for _, edge := range e.graph.Neighbors(path[i]) {
			if edge.To == path[i+1] {
				best = math.Min(best, cost(edge))
			}
		}
		if math.IsInf(best, 1) {
			return 0, false
		}
		total += best
	}
	return total, true
}

// LegCost is the distance and traffic-weighted time along a path
type LegCost struct {
	DistanceKm float64
	TimeHours  float64
	// FreeFlowHours is TimeHours without edge traffic
	FreeFlowHours float64
}

// PathLegCost sums distance and traffic-weighted time along the edges of path,
// following the same edge choice as PathCost under the given selector.
func (e *Engine) PathLegCost(path []string, cost CostSelector) (LegCost, bool) {
	if len(path) == 0 {
		return LegCost{}, false
	}
	if cost == nil {
		cost = DistanceCost
	}

	var leg LegCost
	for i := 0; i+1 < len(path); i++ {
		var chosen *models.Edge
		edges := e.graph.Neighbors(path[i])
		for j := range edges {
			if edges[j].To != path[i+1] {
				continue
			}
			if chosen == nil || cost(edges[j]) < cost(*chosen) {
				chosen = &edges[j]
			}
		}
		if chosen == nil {
			return LegCost{}, false
		}
		leg.DistanceKm += chosen.DistanceKm
		leg.TimeHours += chosen.TrafficTime()
		leg.FreeFlowHours += chosen.TimeHours
	}
	return leg, true
}

func reconstructPath(prev map[string]string, startID, endID string) []string {
	path := []string{endID}
	for current := endID; current != startID; {
		parent, ok := prev[current]
		if !ok {
			return []string{}
		}
		path = append(path, parent)
		current = parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
