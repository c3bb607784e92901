package routing

import (
	"context"
	"errors"
	"fmt"

	"route-optimizer/internal/models"
)

// Request is one optimization request. Start is index 0 of the tour.
type Request struct {
	Start        models.Location
	Destinations []models.Location
	Objective    models.Objective
	// Seed fixes the genetic solver's random source; 0 uses the configured seed
	Seed uint64
}

// Optimizer provides route optimization
type Optimizer interface {
	Optimize(ctx context.Context, req *Request) (*models.OptimizedRoute, error)
}

// ErrInvalidInput is returned when a request violates the caller contract
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ErrSuperseded is returned to a session request whose result was discarded
// because a newer request or a clear replaced it
var ErrSuperseded = errors.New("route request superseded")
