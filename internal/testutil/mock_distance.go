package testutil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"route-optimizer/internal/distance"
	"route-optimizer/internal/models"
)

// ErrUnavailable is returned by a MockRoutingService configured to fail
var ErrUnavailable = errors.New("routing service unavailable")

// LegCall tracks a call for a single leg route
type LegCall struct {
	From string
	To   string
}

// MockRoutingService is a deterministic MatrixProvider and
// RouteGeometryProvider. Costs are the scaled Euclidean distance between
// coordinates, driven at a fixed speed.
type MockRoutingService struct {
	// KmPerDegree scales coordinate deltas to kilometres
	KmPerDegree float64
	SpeedKmh    float64

	FailMatrix bool
	// FailLegs lists "from->to" ids whose leg route fails
	FailLegs map[string]bool
	FailAll  bool

	// Instruction is returned with every leg route
	Instruction string

	// Block, when set, makes GetMatrix wait for it to close or for ctx to end
	Block chan struct{}

	mu          sync.Mutex
	matrixCalls int
	legCalls    []LegCall
}

// NewMockRoutingService creates a mock with 111 km per degree at 50 km/h
func NewMockRoutingService() *MockRoutingService {
	return &MockRoutingService{
		KmPerDegree: 111,
		SpeedKmh:    50,
		FailLegs:    make(map[string]bool),
	}
}

// Distance returns the mock road distance in km between two locations
func (m *MockRoutingService) Distance(a, b models.Location) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	return math.Sqrt(dLat*dLat+dLng*dLng) * m.KmPerDegree
}

func (m *MockRoutingService) GetMatrix(ctx context.Context, locations []models.Location, objective models.Objective) ([][]float64, error) {
	m.mu.Lock()
	m.matrixCalls++
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FailMatrix || m.FailAll {
		return nil, ErrUnavailable
	}

	n := len(locations)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			if i == j {
				continue
			}
			km := m.Distance(locations[i], locations[j])
			if objective == models.ObjectiveTime {
				matrix[i][j] = km / m.SpeedKmh
			} else {
				matrix[i][j] = km
			}
		}
	}
	return matrix, nil
}

func (m *MockRoutingService) GetLegRoute(ctx context.Context, from, to models.Location) (*distance.LegRoute, error) {
	m.mu.Lock()
	m.legCalls = append(m.legCalls, LegCall{From: from.ID, To: to.ID})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FailAll || m.FailLegs[from.ID+"->"+to.ID] {
		return nil, fmt.Errorf("leg %s->%s: %w", from.ID, to.ID, ErrUnavailable)
	}

	km := m.Distance(from, to)
	return &distance.LegRoute{
		DistanceKm:    km,
		DurationHours: km / m.SpeedKmh,
		Instruction:   m.Instruction,
	}, nil
}

// MatrixCalls returns the number of GetMatrix calls
func (m *MockRoutingService) MatrixCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matrixCalls
}

// LegCalls returns the recorded leg route calls in order
func (m *MockRoutingService) LegCalls() []LegCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LegCall(nil), m.legCalls...)
}

// ResetCalls clears the recorded calls
func (m *MockRoutingService) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrixCalls = 0
	m.legCalls = nil
}

// Stops returns a start followed by count destinations on a small grid
func Stops(count int) []models.Location {
	locs := make([]models.Location, 0, count+1)
	locs = append(locs, models.Location{ID: "start", Name: "Start", Lat: 40.70, Lng: -74.00})
	for i := 0; i < count; i++ {
		locs = append(locs, models.Location{
			ID:   fmt.Sprintf("stop-%d", i+1),
			Name: fmt.Sprintf("Stop %d", i+1),
			Lat:  40.70 + 0.01*float64((i*7)%5),
			Lng:  -74.00 + 0.01*float64((i*3)%7+1),
		})
	}
	return locs
}
