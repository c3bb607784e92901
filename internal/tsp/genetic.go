package tsp

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"time"
)

// Rand is the randomness the genetic solver consumes. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// GeneticConfig tunes the genetic solver
type GeneticConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	TournamentSize int
	EliteFraction  float64
	// Seed is used when no Rand is injected. Zero seeds from the clock.
	Seed uint64
}

// DefaultGeneticConfig returns the standard tuning
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 200,
		Generations:    1000,
		MutationRate:   0.02,
		TournamentSize: 5,
		EliteFraction:  0.10,
	}
}

// Validate reports the first out-of-range parameter
func (c GeneticConfig) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return fmt.Errorf("population size must be at least 2, got %d", c.PopulationSize)
	case c.Generations < 1:
		return fmt.Errorf("generations must be at least 1, got %d", c.Generations)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return fmt.Errorf("mutation rate must be within [0,1], got %v", c.MutationRate)
	case c.TournamentSize < 1:
		return fmt.Errorf("tournament size must be at least 1, got %d", c.TournamentSize)
	case c.EliteFraction < 0 || c.EliteFraction >= 1:
		return fmt.Errorf("elite fraction must be within [0,1), got %v", c.EliteFraction)
	}
	return nil
}

// GeneticStats records progress of one genetic run
type GeneticStats struct {
	Generations         int
	FirstGenerationBest float64
	FinalGenerationBest float64
	BestPerGeneration   []float64
}

// Genetic is a single-use genetic solver run
type Genetic struct {
	cfg GeneticConfig
	rng Rand
}

// NewGenetic creates a genetic solver. An invalid cfg is logged and replaced
// with the default tuning, keeping its seed. A nil rng is replaced with a PCG
// source seeded from cfg.Seed, or from the clock when the seed is zero.
func NewGenetic(cfg GeneticConfig, rng Rand) *Genetic {
	if err := cfg.Validate(); err != nil {
		log.Printf("[TSP] Invalid genetic config, using defaults: err=%v", err)
		seed := cfg.Seed
		cfg = DefaultGeneticConfig()
		cfg.Seed = seed
	}
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Genetic{cfg: cfg, rng: rng}
}

type individual struct {
	tour []int
	cost float64
}

// Solve evolves a population of unconstrained permutations and returns the
// cheapest tour ever seen, rotated to begin at start. Cancellation is checked
// between generations.
func (g *Genetic) Solve(ctx context.Context, m [][]float64, start int) (*Result, error) {
	if err := Validate(m, start); err != nil {
		return nil, err
	}
	n := len(m)
	if n <= 2 {
		r := trivial(m, start)
		return &r, nil
	}

	popSize := g.cfg.PopulationSize
	eliteCount := max(1, int(float64(popSize)*g.cfg.EliteFraction))
	eliteCount = min(eliteCount, popSize)

	population := make([]individual, popSize)
	for i := range population {
		tour := g.randomTour(n)
		population[i] = individual{tour: tour, cost: TourCost(m, tour)}
	}
	sortByCost(population)

	best := cloneIndividual(population[0])
	stats := &GeneticStats{
		FirstGenerationBest: best.cost,
		BestPerGeneration:   make([]float64, 0, g.cfg.Generations+1),
	}
	stats.BestPerGeneration = append(stats.BestPerGeneration, best.cost)

	next := make([]individual, popSize)
	for gen := 0; gen < g.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := 0; i < eliteCount; i++ {
			next[i] = cloneIndividual(population[i])
		}
		for i := eliteCount; i < popSize; i++ {
			p1 := g.tournament(population)
			p2 := g.tournament(population)
			child := g.orderCrossover(p1.tour, p2.tour)
			g.mutate(child)
			next[i] = individual{tour: child, cost: TourCost(m, child)}
		}
		population, next = next, population
		sortByCost(population)

		if population[0].cost < best.cost {
			best = cloneIndividual(population[0])
		}
		stats.Generations++
		stats.BestPerGeneration = append(stats.BestPerGeneration, population[0].cost)
	}
	stats.FinalGenerationBest = population[0].cost

	tour := rotateTo(best.tour, start)
	return &Result{Cost: TourCost(m, tour), Tour: tour, Method: MethodGenetic, Stats: stats}, nil
}

func (g *Genetic) randomTour(n int) []int {
	tour := make([]int, n)
	for i := range tour {
		tour[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		tour[i], tour[j] = tour[j], tour[i]
	}
	return tour
}

// tournament samples distinct individuals and returns the cheapest
func (g *Genetic) tournament(population []individual) individual {
	k := min(g.cfg.TournamentSize, len(population))
	chosen := make(map[int]struct{}, k)
	winner := -1
	for len(chosen) < k {
		idx := g.rng.IntN(len(population))
		if _, seen := chosen[idx]; seen {
			continue
		}
		chosen[idx] = struct{}{}
		if winner < 0 || population[idx].cost < population[winner].cost {
			winner = idx
		}
	}
	return population[winner]
}

// orderCrossover copies a random slice of p1 in place, then fills the
// remaining slots with the missing genes in p2's order, wrapping from the end
// of the slice.
func (g *Genetic) orderCrossover(p1, p2 []int) []int {
	n := len(p1)
	lo := g.rng.IntN(n)
	hi := lo + 1 + g.rng.IntN(n-lo)

	child := make([]int, n)
	used := make([]bool, n)
	for i := range child {
		child[i] = -1
	}
	for i := lo; i < hi; i++ {
		child[i] = p1[i]
		used[p1[i]] = true
	}

	pos := hi % n
	for _, gene := range p2 {
		if used[gene] {
			continue
		}
		for child[pos] != -1 {
			pos = (pos + 1) % n
		}
		child[pos] = gene
		used[gene] = true
	}
	return child
}

func (g *Genetic) mutate(tour []int) {
	if g.rng.Float64() >= g.cfg.MutationRate {
		return
	}
	i := g.rng.IntN(len(tour))
	j := g.rng.IntN(len(tour))
	tour[i], tour[j] = tour[j], tour[i]
}

func rotateTo(tour []int, start int) []int {
	idx := 0
	for i, v := range tour {
		if v == start {
			idx = i
			break
		}
	}
	rotated := make([]int, 0, len(tour))
	rotated = append(rotated, tour[idx:]...)
	return append(rotated, tour[:idx]...)
}

func cloneIndividual(ind individual) individual {
	return individual{tour: append([]int(nil), ind.tour...), cost: ind.cost}
}

func sortByCost(pop []individual) {
	slices.SortStableFunc(pop, func(a, b individual) int {
		return cmp.Compare(a.cost, b.cost)
	})
}
