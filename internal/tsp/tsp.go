// Package tsp solves the closed multi-stop ordering problem over a square
// cost matrix. Small instances are solved exactly with bitmask dynamic
// programming; larger ones use a genetic heuristic.
//
// Every solver returns a tour that starts at the designated start index and
// visits each index exactly once. The returned cost always equals TourCost of
// the returned tour, i.e. the sum of consecutive entries plus the closing
// entry back to the start.
package tsp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// DefaultExactThreshold is the largest instance size routed to the exact solver
const DefaultExactThreshold = 12

// MaxExactSize bounds the exact solver's O(N·2^N) tables
const MaxExactSize = 16

var (
	ErrEmptyMatrix = errors.New("cost matrix is empty")
	ErrTooLarge    = fmt.Errorf("instance too large for exact solver (max %d)", MaxExactSize)
)

// ErrInvalidMatrix describes a malformed cost matrix
type ErrInvalidMatrix struct {
	Reason string
}

func (e *ErrInvalidMatrix) Error() string {
	return fmt.Sprintf("invalid cost matrix: %s", e.Reason)
}

// Method names the solver that produced a result
type Method string

const (
	MethodTrivial Method = "trivial"
	MethodExact   Method = "exact"
	MethodGenetic Method = "genetic"
)

// Result is a solved tour
type Result struct {
	Cost   float64
	Tour   []int
	Method Method
	Stats  *GeneticStats
}

// TourCost sums m along the tour, closing back to the first element
func TourCost(m [][]float64, tour []int) float64 {
	if len(tour) == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i+1 < len(tour); i++ {
		total += m[tour[i]][tour[i+1]]
	}
	total += m[tour[len(tour)-1]][tour[0]]
	return total
}

// Validate checks that m is non-empty, square, free of NaN and negative
// entries, and that start is a valid index
func Validate(m [][]float64, start int) error {
	n := len(m)
	if n == 0 {
		return ErrEmptyMatrix
	}
	for i, row := range m {
		if len(row) != n {
			return &ErrInvalidMatrix{Reason: fmt.Sprintf("row %d has %d entries, want %d", i, len(row), n)}
		}
		for j, v := range row {
			if math.IsNaN(v) || v < 0 {
				return &ErrInvalidMatrix{Reason: fmt.Sprintf("entry [%d][%d] = %v", i, j, v)}
			}
		}
	}
	if start < 0 || start >= n {
		return &ErrInvalidMatrix{Reason: fmt.Sprintf("start index %d out of range", start)}
	}
	return nil
}

// trivial handles instances with at most two indices, where only one tour
// exists. The cost is the closed tour: zero for one index and the round trip
// m[start][other] + m[other][start] for two.
func trivial(m [][]float64, start int) Result {
	tour := []int{start}
	if len(m) == 2 {
		tour = append(tour, 1-start)
	}
	return Result{Cost: TourCost(m, tour), Tour: tour, Method: MethodTrivial}
}

// Solver selects between the exact and genetic solvers by instance size
type Solver struct {
	ExactThreshold int
	Genetic        GeneticConfig
}

// NewSolver creates a solver with default threshold and genetic configuration
func NewSolver() *Solver {
	return &Solver{
		ExactThreshold: DefaultExactThreshold,
		Genetic:        DefaultGeneticConfig(),
	}
}

func (s *Solver) threshold() int {
	if s.ExactThreshold <= 0 {
		return DefaultExactThreshold
	}
	return min(s.ExactThreshold, MaxExactSize)
}

// Solve picks the exact solver when len(m) is within the threshold and the
// genetic solver otherwise. rng may be nil, in which case the genetic solver
// seeds from its configuration.
func (s *Solver) Solve(ctx context.Context, m [][]float64, start int, rng Rand) (*Result, error) {
	if err := Validate(m, start); err != nil {
		return nil, err
	}

	n := len(m)
	started := time.Now()

	var (
		result *Result
		err    error
	)
	if n <= s.threshold() {
		result, err = SolveExact(m, start)
	} else {
		result, err = NewGenetic(s.Genetic, rng).Solve(ctx, m, start)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[TSP] Solved: n=%d method=%s cost=%.4f elapsed=%v", n, result.Method, result.Cost, time.Since(started))
	return result, nil
}
