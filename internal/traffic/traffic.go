// Package traffic supplies per-leg congestion multipliers. A provider always
// answers; when it cannot assess a leg it returns the neutral multiplier 1.0.
package traffic

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"route-optimizer/internal/graph"
	"route-optimizer/internal/models"
)

// Leg identifies a directed leg between two location ids
type Leg struct {
	From string
	To   string
}

func (l Leg) String() string {
	return l.From + "->" + l.To
}

// Provider returns a traffic multiplier >= 1.0 for a leg
type Provider interface {
	Multiplier(leg Leg) float64
}

// Clamp maps NaN and sub-neutral values to the neutral multiplier
func Clamp(m float64) float64 {
	if m != m || m < models.DefaultTrafficMultiplier {
		return models.DefaultTrafficMultiplier
	}
	return m
}

// Neutral reports free-flowing traffic everywhere
type Neutral struct{}

func (Neutral) Multiplier(Leg) float64 { return models.DefaultTrafficMultiplier }

// Static serves fixed multipliers per leg
type Static map[Leg]float64

func (s Static) Multiplier(leg Leg) float64 {
	return Clamp(s[leg])
}

// Simulated derives a stable pseudo-random congestion level per leg from a
// seed. The multiplier is 1 + 2c for congestion c in [0, 1).
type Simulated struct {
	seed uint64
}

func NewSimulated(seed uint64) *Simulated {
	return &Simulated{seed: seed}
}

func (s *Simulated) Multiplier(leg Leg) float64 {
	h := fnv.New64a()
	h.Write([]byte(leg.String()))
	rng := rand.New(rand.NewPCG(s.seed, h.Sum64()))
	return 1 + rng.Float64()*2
}

// GraphEdges reads the multiplier of the direct edge between the leg's
// endpoints in a road graph
type GraphEdges struct {
	graph *graph.GeoGraph
}

func NewGraphEdges(g *graph.GeoGraph) *GraphEdges {
	return &GraphEdges{graph: g}
}

func (p *GraphEdges) Multiplier(leg Leg) float64 {
	if p.graph == nil {
		return models.DefaultTrafficMultiplier
	}
	edge, ok := p.graph.Edge(leg.From, leg.To)
	if !ok {
		return models.DefaultTrafficMultiplier
	}
	return edge.Multiplier()
}

// Mode names a provider implementation
type Mode string

const (
	ModeNeutral   Mode = "neutral"
	ModeSimulated Mode = "simulated"
	ModeGraph     Mode = "graph"
)

// ParseMode parses a provider name, defaulting to neutral
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNeutral:
		return ModeNeutral, nil
	case ModeSimulated:
		return ModeSimulated, nil
	case ModeGraph:
		return ModeGraph, nil
	default:
		return "", fmt.Errorf("unknown traffic mode %q", s)
	}
}

// New builds the provider for mode. ModeGraph falls back to Neutral when g is nil.
func New(mode Mode, seed uint64, g *graph.GeoGraph) Provider {
	switch mode {
	case ModeSimulated:
		return NewSimulated(seed)
	case ModeGraph:
		if g != nil {
			return NewGraphEdges(g)
		}
	}
	return Neutral{}
}
