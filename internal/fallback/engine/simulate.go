package engine

import (
	"context"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Simulator dry-runs a payload against current state.
type Simulator interface {
	Simulate(ctx context.Context, call domain.Call) error
}

// simulate runs the dry run and classifies a failure.
func (e *Engine) simulate(ctx context.Context, req domain.PendingRequest, call domain.Call) *SimulationFailure {
	err := e.sim.Simulate(ctx, call)
	if err == nil {
		return nil
	}
	return &SimulationFailure{
		Request: req,
		Pruned:  e.job.PruneOnRevert(err),
		Err:     err,
	}
}
