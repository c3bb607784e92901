package tsp

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// euclidean builds a symmetric matrix from random points in the unit square
func euclidean(rng *rand.Rand, n int) [][]float64 {
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range xs {
		xs[i] = rng.Float64() * 100
		ys[i] = rng.Float64() * 100
	}
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
		}
	}
	return m
}

// bruteForce enumerates every tour starting at start
func bruteForce(m [][]float64, start int) float64 {
	n := len(m)
	rest := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != start {
			rest = append(rest, i)
		}
	}
	best := math.Inf(1)
	var permute func(k int)
	permute = func(k int) {
		if k == len(rest) {
			tour := append([]int{start}, rest...)
			best = math.Min(best, TourCost(m, tour))
			return
		}
		for i := k; i < len(rest); i++ {
			rest[k], rest[i] = rest[i], rest[k]
			permute(k + 1)
			rest[k], rest[i] = rest[i], rest[k]
		}
	}
	permute(0)
	return best
}

func assertValidTour(t *testing.T, tour []int, n, start int) {
	t.Helper()
	require.Len(t, tour, n)
	assert.Equal(t, start, tour[0])
	seen := make(map[int]bool, n)
	for _, idx := range tour {
		assert.False(t, seen[idx], "index %d visited twice", idx)
		assert.True(t, idx >= 0 && idx < n)
		seen[idx] = true
	}
}

func fastGenetic() GeneticConfig {
	cfg := DefaultGeneticConfig()
	cfg.Generations = 300
	return cfg
}

func TestTourCostIncludesClosingEdge(t *testing.T) {
	m := [][]float64{
		{0, 1, 9},
		{1, 0, 2},
		{4, 2, 0},
	}
	assert.Equal(t, 1.0+2.0+4.0, TourCost(m, []int{0, 1, 2}))
	assert.Equal(t, 0.0, TourCost(m, []int{1}))
	assert.Equal(t, 0.0, TourCost(m, nil))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, 0), ErrEmptyMatrix)

	var invalid *ErrInvalidMatrix
	assert.True(t, errors.As(Validate([][]float64{{0, 1}, {1}}, 0), &invalid))
	assert.True(t, errors.As(Validate([][]float64{{0, -1}, {1, 0}}, 0), &invalid))
	assert.True(t, errors.As(Validate([][]float64{{0, math.NaN()}, {1, 0}}, 0), &invalid))
	assert.True(t, errors.As(Validate([][]float64{{0}}, 1), &invalid))
	assert.NoError(t, Validate([][]float64{{0}}, 0))
}

func TestExactMatchesBruteForce(t *testing.T) {
	rng := seeded(11)
	for n := 3; n <= 9; n++ {
		for trial := 0; trial < 3; trial++ {
			m := euclidean(rng, n)
			start := rng.IntN(n)

			res, err := SolveExact(m, start)
			require.NoError(t, err)
			assertValidTour(t, res.Tour, n, start)
			assert.InDelta(t, bruteForce(m, start), res.Cost, 1e-9, "n=%d trial=%d", n, trial)
			assert.Equal(t, MethodExact, res.Method)
		}
	}
}

func TestExactAsymmetricMatrix(t *testing.T) {
	// Going 0->1->2->3->0 costs 4, the reverse direction costs 40
	m := [][]float64{
		{0, 1, 10, 10},
		{10, 0, 1, 10},
		{10, 10, 0, 1},
		{1, 10, 10, 0},
	}
	res, err := SolveExact(m, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Tour)
	assert.Equal(t, 4.0, res.Cost)
}

func TestSquareCorners(t *testing.T) {
	// Unit square corners: the perimeter tour costs 4, any crossing tour 2+2√2
	s := math.Sqrt2
	m := [][]float64{
		{0, 1, s, 1},
		{1, 0, 1, s},
		{s, 1, 0, 1},
		{1, s, 1, 0},
	}

	exact, err := SolveExact(m, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, exact.Cost, 1e-12)
	assertValidTour(t, exact.Tour, 4, 0)

	gen, err := NewGenetic(fastGenetic(), seeded(3)).Solve(context.Background(), m, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, gen.Cost, 1e-12)
	assertValidTour(t, gen.Tour, 4, 0)
}

func TestSingleDestination(t *testing.T) {
	m := [][]float64{{0, 7}, {7, 0}}

	exact, err := SolveExact(m, 0)
	require.NoError(t, err)
	gen, err := NewGenetic(DefaultGeneticConfig(), seeded(1)).Solve(context.Background(), m, 0)
	require.NoError(t, err)

	for _, res := range []*Result{exact, gen} {
		assert.Equal(t, []int{0, 1}, res.Tour)
		assert.Equal(t, MethodTrivial, res.Method)
		assert.Equal(t, TourCost(m, res.Tour), res.Cost)
	}

	fromOne, err := SolveExact(m, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, fromOne.Tour)
}

func TestTrivialCostIsRoundTrip(t *testing.T) {
	m := [][]float64{{0, 3}, {5, 0}}

	for start, other := range []int{1, 0} {
		res, err := NewSolver().Solve(context.Background(), m, start, nil)
		require.NoError(t, err)
		assert.Equal(t, MethodTrivial, res.Method)
		assert.Equal(t, []int{start, other}, res.Tour)
		assert.Equal(t, 8.0, res.Cost)
	}
}

func TestSingleLocation(t *testing.T) {
	res, err := NewSolver().Solve(context.Background(), [][]float64{{0}}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Tour)
	assert.Equal(t, 0.0, res.Cost)
}

func TestGeneticCostIsConsistent(t *testing.T) {
	rng := seeded(21)
	for _, n := range []int{5, 13, 25} {
		m := euclidean(rng, n)
		start := rng.IntN(n)
		res, err := NewGenetic(fastGenetic(), seeded(uint64(n))).Solve(context.Background(), m, start)
		require.NoError(t, err)
		assertValidTour(t, res.Tour, n, start)
		assert.Equal(t, TourCost(m, res.Tour), res.Cost)
	}
}

func TestGeneticNeverRegresses(t *testing.T) {
	m := euclidean(seeded(8), 20)
	res, err := NewGenetic(fastGenetic(), seeded(9)).Solve(context.Background(), m, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Stats)

	assert.Equal(t, 300, res.Stats.Generations)
	assert.LessOrEqual(t, res.Stats.FinalGenerationBest, res.Stats.FirstGenerationBest)
	for i := 1; i < len(res.Stats.BestPerGeneration); i++ {
		assert.LessOrEqual(t, res.Stats.BestPerGeneration[i], res.Stats.BestPerGeneration[i-1])
	}
	assert.InDelta(t, res.Stats.FinalGenerationBest, res.Cost, 1e-9)
}

func TestGeneticNearOptimalOnSmallInstances(t *testing.T) {
	rng := seeded(77)
	for trial := 0; trial < 3; trial++ {
		m := euclidean(rng, 8)
		optimal := bruteForce(m, 0)
		res, err := NewGenetic(fastGenetic(), seeded(uint64(trial))).Solve(context.Background(), m, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Cost, optimal*1.05)
	}
}

func TestGeneticDeterministicWithSeed(t *testing.T) {
	m := euclidean(seeded(4), 18)

	a, err := NewGenetic(fastGenetic(), seeded(100)).Solve(context.Background(), m, 2)
	require.NoError(t, err)
	b, err := NewGenetic(fastGenetic(), seeded(100)).Solve(context.Background(), m, 2)
	require.NoError(t, err)

	assert.Equal(t, a.Tour, b.Tour)
	assert.Equal(t, a.Cost, b.Cost)

	cfg := fastGenetic()
	cfg.Seed = 55
	c, err := NewGenetic(cfg, nil).Solve(context.Background(), m, 2)
	require.NoError(t, err)
	d, err := NewGenetic(cfg, nil).Solve(context.Background(), m, 2)
	require.NoError(t, err)
	assert.Equal(t, c.Tour, d.Tour)
}

func TestGeneticHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenetic(DefaultGeneticConfig(), seeded(1)).Solve(ctx, euclidean(seeded(1), 15), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrderCrossoverProducesPermutation(t *testing.T) {
	g := NewGenetic(DefaultGeneticConfig(), seeded(5))
	p1 := []int{0, 1, 2, 3, 4, 5, 6, 7}
	p2 := []int{7, 6, 5, 4, 3, 2, 1, 0}
	for i := 0; i < 200; i++ {
		child := g.orderCrossover(p1, p2)
		seen := make(map[int]bool)
		for _, gene := range child {
			seen[gene] = true
		}
		assert.Len(t, seen, 8)
	}
}

func TestSolverDispatchesByThreshold(t *testing.T) {
	s := NewSolver()
	s.ExactThreshold = 6
	s.Genetic = fastGenetic()

	small, err := s.Solve(context.Background(), euclidean(seeded(1), 6), 0, seeded(1))
	require.NoError(t, err)
	assert.Equal(t, MethodExact, small.Method)

	large, err := s.Solve(context.Background(), euclidean(seeded(2), 7), 0, seeded(1))
	require.NoError(t, err)
	assert.Equal(t, MethodGenetic, large.Method)
}

func TestSolverDefaultThresholdIsTwelve(t *testing.T) {
	s := NewSolver()
	s.Genetic = fastGenetic()

	res, err := s.Solve(context.Background(), euclidean(seeded(3), 12), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodExact, res.Method)

	res, err = s.Solve(context.Background(), euclidean(seeded(3), 13), 0, seeded(2))
	require.NoError(t, err)
	assert.Equal(t, MethodGenetic, res.Method)
}

func TestExactRejectsOversizedInstance(t *testing.T) {
	_, err := SolveExact(euclidean(seeded(1), MaxExactSize+1), 0)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestGeneticConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultGeneticConfig().Validate())

	cfg := DefaultGeneticConfig()
	cfg.MutationRate = 2
	assert.Error(t, cfg.Validate())

	cfg = DefaultGeneticConfig()
	cfg.PopulationSize = 1
	assert.Error(t, cfg.Validate())
}

func TestNewGeneticFallsBackToDefaults(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	cfg := DefaultGeneticConfig()
	cfg.MutationRate = 2
	cfg.Seed = 42
	g := NewGenetic(cfg, nil)

	want := DefaultGeneticConfig()
	want.Seed = 42
	assert.Equal(t, want, g.cfg)
	assert.Contains(t, buf.String(), "[TSP] Invalid genetic config")
	assert.Contains(t, buf.String(), "mutation rate must be within [0,1]")

	buf.Reset()
	NewGenetic(DefaultGeneticConfig(), seeded(1))
	assert.Empty(t, buf.String())
}
