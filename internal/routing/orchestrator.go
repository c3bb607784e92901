package routing

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"route-optimizer/internal/distance"
	"route-optimizer/internal/geo"
	"route-optimizer/internal/matrix"
	"route-optimizer/internal/models"
	"route-optimizer/internal/traffic"
	"route-optimizer/internal/tsp"
)

// Stage is a step of the optimization pipeline, run strictly in order
type Stage string

const (
	StageMatrixAcquisition Stage = "matrix_acquisition"
	StageTourSolve         Stage = "tour_solve"
	StageStepDerivation    Stage = "step_derivation"
	StageDone              Stage = "done"
)

// Options configures an Orchestrator
type Options struct {
	ExactThreshold int
	Genetic        tsp.GeneticConfig
	// CompassSectors is 4 or 8
	CompassSectors int
}

// DefaultOptions returns the default solver threshold, genetic configuration and 8-point compass
func DefaultOptions() Options {
	return Options{
		ExactThreshold: tsp.DefaultExactThreshold,
		Genetic:        tsp.DefaultGeneticConfig(),
		CompassSectors: 8,
	}
}

// Orchestrator turns a set of stops into an OptimizedRoute. It holds no
// per-request state and may serve concurrent requests.
type Orchestrator struct {
	matrix  *matrix.Builder
	legs    distance.RouteGeometryProvider
	solver  *tsp.Solver
	sectors int
}

// NewOrchestrator creates an orchestrator. legs may be nil, in which case
// every step is estimated locally; a nil traffic provider is neutral. tp
// weights both the time matrix and the steps.
func NewOrchestrator(builder *matrix.Builder, legs distance.RouteGeometryProvider, tp traffic.Provider, opts Options) *Orchestrator {
	if builder == nil {
		builder = matrix.NewBuilder(nil, nil, 0)
	}
	if tp == nil {
		tp = traffic.Neutral{}
	}
	if opts.CompassSectors != 4 {
		opts.CompassSectors = 8
	}
	return &Orchestrator{
		matrix:  builder.WithTraffic(tp),
		legs:    legs,
		solver: &tsp.Solver{
			ExactThreshold: opts.ExactThreshold,
			Genetic:        opts.Genetic,
		},
		sectors: opts.CompassSectors,
	}
}

// Optimize runs MatrixAcquisition, TourSolve and StepDerivation in order.
// Collaborator failures degrade the result and are reported in Notices;
// only invalid input and cancellation return an error.
func (o *Orchestrator) Optimize(ctx context.Context, req *Request) (*models.OptimizedRoute, error) {
	locations, objective, err := o.prepare(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	n := len(locations)
	log.Printf("[ROUTING] Starting optimization: stops=%d objective=%s", n, objective)

	if n <= 1 {
		log.Printf("[ROUTING] No destinations to route")
		return &models.OptimizedRoute{
			Locations:    locations,
			Steps:        []models.RouteStep{},
			Objective:    objective,
			Solver:       string(tsp.MethodTrivial),
			MatrixSource: models.SourceLocal,
			Notices:      []string{},
			ComputedAt:   time.Now().UTC(),
		}, nil
	}

	var notices []string

	// MatrixAcquisition
	stageStart := time.Now()
	built := o.matrix.Build(ctx, locations, objective)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if built.Notice != "" {
		notices = append(notices, built.Notice)
	}
	log.Printf("[TIMING] Stage %s: %v source=%s", StageMatrixAcquisition, time.Since(stageStart), built.Source)

	// TourSolve
	stageStart = time.Now()
	var rng tsp.Rand
	if req.Seed != 0 {
		rng = rand.New(rand.NewPCG(req.Seed, req.Seed))
	}
	solved, err := o.solver.Solve(ctx, built.Matrix, 0, rng)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("solve tour: %w", err)
	}
	log.Printf("[TIMING] Stage %s: %v method=%s", StageTourSolve, time.Since(stageStart), solved.Method)

	ordered := make([]models.Location, len(solved.Tour))
	for i, idx := range solved.Tour {
		ordered[i] = locations[idx]
	}

	// StepDerivation
	stageStart = time.Now()
	steps, fallbackLegs, err := o.deriveSteps(ctx, ordered, objective, built.Degraded())
	if err != nil {
		return nil, err
	}
	if fallbackLegs > 0 && !built.Degraded() && o.legs != nil {
		notices = append(notices, fmt.Sprintf("Detailed routing was unavailable for %d of %d legs; those legs are estimated.", fallbackLegs, len(steps)))
	}
	log.Printf("[TIMING] Stage %s: %v legs=%d fallback=%d", StageStepDerivation, time.Since(stageStart), len(steps), fallbackLegs)

	// Done
	route := &models.OptimizedRoute{
		Locations:    ordered,
		Steps:        steps,
		Objective:    objective,
		Solver:       string(solved.Method),
		MatrixSource: built.Source,
		Notices:      notices,
		ComputedAt:   time.Now().UTC(),
	}
	if route.Notices == nil {
		route.Notices = []string{}
	}
	aggregate(route, solved.Cost)

	log.Printf("[ROUTING] Optimization complete: stops=%d solver=%s distance=%.3fkm time=%.3fh notices=%d elapsed=%v",
		n, route.Solver, route.TotalDistanceKm, route.TotalTimeHours, len(route.Notices), time.Since(started))
	log.Printf("[TIMING] Stage %s: total=%v", StageDone, time.Since(started))
	return route, nil
}

// prepare validates the request and returns start followed by destinations.
// Missing ids are generated; duplicate ids are rejected.
func (o *Orchestrator) prepare(req *Request) ([]models.Location, models.Objective, error) {
	if req == nil {
		return nil, "", &ErrInvalidInput{Field: "request", Reason: "is required"}
	}

	objective, err := models.ParseObjective(string(req.Objective))
	if err != nil {
		return nil, "", &ErrInvalidInput{Field: "objective", Reason: err.Error()}
	}

	locations := make([]models.Location, 0, len(req.Destinations)+1)
	locations = append(locations, req.Start)
	locations = append(locations, req.Destinations...)

	seen := make(map[string]bool, len(locations))
	for i := range locations {
		field := "start"
		if i > 0 {
			field = fmt.Sprintf("destinations[%d]", i-1)
		}
		if err := locations[i].Validate(); err != nil {
			return nil, "", &ErrInvalidInput{Field: field, Reason: err.Error()}
		}
		if strings.TrimSpace(locations[i].ID) == "" {
			locations[i].ID = uuid.NewString()
		}
		if seen[locations[i].ID] {
			return nil, "", &ErrInvalidInput{Field: field, Reason: fmt.Sprintf("duplicate location id %q", locations[i].ID)}
		}
		seen[locations[i].ID] = true
	}
	return locations, objective, nil
}

// deriveSteps builds one step per tour edge in tour order, including the
// closing leg back to the start. It returns how many legs used the local
// estimate. When skipRemote is set no per-leg requests are made.
func (o *Orchestrator) deriveSteps(ctx context.Context, ordered []models.Location, objective models.Objective, skipRemote bool) ([]models.RouteStep, int, error) {
	n := len(ordered)
	steps := make([]models.RouteStep, 0, n)
	fallbackLegs := 0

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		from, to := ordered[i], ordered[(i+1)%n]
		step, remote := o.deriveStep(ctx, from, to, objective, skipRemote)
		if !remote {
			fallbackLegs++
		}
		steps = append(steps, step)
	}
	return steps, fallbackLegs, nil
}

// deriveStep prices one leg the way the matrix priced it: remote legs are
// weighted by the traffic provider, local legs come from the matrix builder.
func (o *Orchestrator) deriveStep(ctx context.Context, from, to models.Location, objective models.Objective, skipRemote bool) (models.RouteStep, bool) {
	step := models.RouteStep{From: from, To: to, Source: models.SourceLocal}

	remote := false
	if o.legs != nil && !skipRemote {
		leg, err := o.legs.GetLegRoute(ctx, from, to)
		if err == nil && leg != nil {
			step.TrafficMultiplier = o.matrix.Multiplier(from, to)
			step.DistanceKm = leg.DistanceKm
			step.TimeHours = leg.DurationHours * step.TrafficMultiplier
			step.Instruction = leg.Instruction
			step.Source = models.SourceRemote
			remote = true
		} else {
			log.Printf("[WARN] Leg route failed, using estimate: from=%s to=%s err=%v", from.ID, to.ID, err)
		}
	}
	if !remote {
		leg := o.matrix.LocalLeg(from, to, objective)
		step.DistanceKm = leg.DistanceKm
		step.TimeHours = leg.TimeHours
		step.TrafficMultiplier = leg.TrafficMultiplier
	}

	step.Instruction = o.instruction(from, to, step.Instruction, step.TrafficMultiplier)
	return step, remote
}

// instruction keeps the router's own text when it has one and otherwise
// names the compass direction; a traffic qualifier is appended either way
func (o *Orchestrator) instruction(from, to models.Location, text string, multiplier float64) string {
	if text == "" {
		bearing := geo.BearingDegrees(from.GetCoords(), to.GetCoords())
		text = fmt.Sprintf("Head %s toward %s", geo.Compass(bearing, o.sectors), displayName(to))
	}
	if severity := geo.Severity(multiplier); severity != "" {
		text += fmt.Sprintf(" (%s traffic)", severity)
	}
	return text
}

func displayName(loc models.Location) string {
	if loc.Name != "" {
		return loc.Name
	}
	return loc.ID
}

// aggregate uses the solver total for the optimized axis and the sum of the
// steps for the other one
func aggregate(route *models.OptimizedRoute, solverCost float64) {
	var km, hours float64
	for _, s := range route.Steps {
		km += s.DistanceKm
		hours += s.TimeHours
	}

	if route.Objective == models.ObjectiveTime {
		route.TotalTimeHours = solverCost
		route.TotalDistanceKm = km
	} else {
		route.TotalDistanceKm = solverCost
		route.TotalTimeHours = hours
	}
}
