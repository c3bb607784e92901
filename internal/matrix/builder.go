// Package matrix builds the N×N cost matrix an optimization runs on. The
// remote provider is preferred; any failure or malformed answer degrades to
// a locally computed matrix, so Build always returns a complete matrix.
package matrix

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"route-optimizer/internal/distance"
	"route-optimizer/internal/geo"
	"route-optimizer/internal/models"
	"route-optimizer/internal/pathfinding"
	"route-optimizer/internal/traffic"
)

// DefaultSpeedKmh converts great-circle distance to time when no road data exists
const DefaultSpeedKmh = 60.0

// Result is a complete cost matrix and where it came from
type Result struct {
	Matrix [][]float64
	Source string
	// Notice is set when the remote provider failed and the local fallback was used
	Notice string
}

// Degraded reports whether the matrix came from the fallback path
func (r Result) Degraded() bool {
	return r.Notice != ""
}

// Builder produces cost matrices
type Builder struct {
	provider distance.MatrixProvider
	engine   *pathfinding.Engine
	traffic  traffic.Provider
	speedKmh float64
}

// NewBuilder creates a builder. provider and engine may each be nil; without a
// provider every matrix is local, and without an engine local cells use
// great-circle distance only.
func NewBuilder(provider distance.MatrixProvider, engine *pathfinding.Engine, speedKmh float64) *Builder {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return &Builder{provider: provider, engine: engine, speedKmh: speedKmh}
}

// WithTraffic returns a copy of b whose time estimates are weighted by tp
func (b *Builder) WithTraffic(tp traffic.Provider) *Builder {
	c := *b
	c.traffic = tp
	return &c
}

// SpeedKmh returns the assumed fallback speed
func (b *Builder) SpeedKmh() float64 {
	return b.speedKmh
}

// Multiplier is the clamped traffic multiplier for the directed leg from -> to
func (b *Builder) Multiplier(from, to models.Location) float64 {
	if b.traffic == nil {
		return models.DefaultTrafficMultiplier
	}
	return traffic.Clamp(b.traffic.Multiplier(traffic.Leg{From: from.ID, To: to.ID}))
}

// Build returns the matrix for locations under objective. It never fails:
// provider errors are logged and answered with the local matrix. Time
// matrices include traffic.
func (b *Builder) Build(ctx context.Context, locations []models.Location, objective models.Objective) Result {
	n := len(locations)
	if n == 0 {
		return Result{Matrix: [][]float64{}, Source: models.SourceLocal}
	}

	if b.provider != nil {
		started := time.Now()
		m, err := b.provider.GetMatrix(ctx, locations, objective)
		if err == nil {
			err = validate(m, n)
		}
		if err == nil {
			for i := range m {
				m[i][i] = 0
				if objective != models.ObjectiveTime {
					continue
				}
				for j := range m[i] {
					if i != j {
						m[i][j] *= b.Multiplier(locations[i], locations[j])
					}
				}
			}
			log.Printf("[MATRIX] Remote matrix: n=%d objective=%s elapsed=%v", n, objective, time.Since(started))
			return Result{Matrix: m, Source: models.SourceRemote}
		}

		log.Printf("[WARN] Matrix provider failed, using local fallback: n=%d objective=%s err=%v", n, objective, err)
		notice := "Live routing data was unavailable; distances are estimated from straight-line geometry."
		if b.engine != nil {
			notice = "Live routing data was unavailable; distances are estimated from the local road network and straight-line geometry."
		}
		return Result{
			Matrix: b.Local(locations, objective),
			Source: models.SourceLocal,
			Notice: notice,
		}
	}

	return Result{Matrix: b.Local(locations, objective), Source: models.SourceLocal}
}

func validate(m [][]float64, n int) error {
	if len(m) != n {
		return fmt.Errorf("matrix has %d rows, want %d", len(m), n)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("matrix row %d has %d entries, want %d", i, len(row), n)
		}
		for j, v := range row {
			if i != j && (math.IsNaN(v) || math.IsInf(v, 0) || v < 0) {
				return fmt.Errorf("matrix entry [%d][%d] = %v", i, j, v)
			}
		}
	}
	return nil
}

// Local computes every cell without the remote provider
func (b *Builder) Local(locations []models.Location, objective models.Objective) [][]float64 {
	n := len(locations)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = b.localCost(locations[i], locations[j], objective)
			}
		}
	}
	return m
}

// Leg is the local estimate for one directed leg. TimeHours includes traffic.
type Leg struct {
	DistanceKm        float64
	TimeHours         float64
	TrafficMultiplier float64
	// Road is set when the estimate follows the road graph
	Road bool
}

// LocalLeg estimates one leg without the remote provider, the same way Local
// fills a matrix cell. Road graph legs carry the traffic of their edges;
// straight-line legs are weighted by the traffic provider.
func (b *Builder) LocalLeg(from, to models.Location, objective models.Objective) Leg {
	if road, ok := b.roadLeg(from, to, objective); ok {
		leg := Leg{
			DistanceKm:        road.DistanceKm,
			TimeHours:         road.TimeHours,
			TrafficMultiplier: models.DefaultTrafficMultiplier,
			Road:              true,
		}
		if road.FreeFlowHours > 0 {
			leg.TrafficMultiplier = traffic.Clamp(road.TimeHours / road.FreeFlowHours)
		}
		return leg
	}

	km, hours := b.StraightLine(from, to)
	multiplier := b.Multiplier(from, to)
	return Leg{DistanceKm: km, TimeHours: hours * multiplier, TrafficMultiplier: multiplier}
}

func (b *Builder) localCost(from, to models.Location, objective models.Objective) float64 {
	leg := b.LocalLeg(from, to, objective)
	if objective == models.ObjectiveTime {
		return leg.TimeHours
	}
	return leg.DistanceKm
}

// roadLeg searches the road graph between two stops it knows about
func (b *Builder) roadLeg(from, to models.Location, objective models.Objective) (pathfinding.LegCost, bool) {
	if b.engine == nil {
		return pathfinding.LegCost{}, false
	}

	selector := pathfinding.SelectorFor(objective)
	var path []string
	if objective == models.ObjectiveTime {
		path = b.engine.ShortestPath(from.ID, to.ID, selector)
	} else {
		path = b.engine.FindPath(from.ID, to.ID)
	}
	if len(path) == 0 {
		return pathfinding.LegCost{}, false
	}
	return b.engine.PathLegCost(path, selector)
}

// StraightLine is the great-circle distance between two stops and the time to
// cover it at the assumed speed
func (b *Builder) StraightLine(from, to models.Location) (km, hours float64) {
	km = geo.Distance(from, to)
	return km, km / b.speedKmh
}
