// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about annealer progress, solver iterations, and checkpoint
// verification.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPlacerHooks(&myPlacerHooks{})
//	    observability.SetSolverHooks(&mySolverHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Placer().OnTemperatureUpdate(ctx, temp, rlim, successRate)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Placer Hooks
// =============================================================================

// PlacerHooks receives events from the annealing loop.
type PlacerHooks interface {
	// OnMoveCommitted records an accepted and committed move proposal.
	OnMoveCommitted(ctx context.Context, moveType string, delta float64)

	// OnMoveRejected records a rejected or aborted move proposal.
	OnMoveRejected(ctx context.Context, moveType string)

	// OnTemperatureUpdate records the end of an outer annealing iteration.
	OnTemperatureUpdate(ctx context.Context, temperature, rangeLimit, successRate float64)

	// OnStateTransition records an annealer state machine transition.
	OnStateTransition(ctx context.Context, from, to string)
}

// =============================================================================
// Solver Hooks
// =============================================================================

// SolverHooks receives events from the analytical solver.
type SolverHooks interface {
	// OnSystemBuilt records assembly of the base linear system.
	OnSystemBuilt(ctx context.Context, rows, nonzeros int, duration time.Duration)

	// OnSolveComplete records one full x/y solve.
	OnSolveComplete(ctx context.Context, iteration int, cgIterations int, duration time.Duration, err error)
}

// =============================================================================
// Checkpoint Hooks
// =============================================================================

// CheckpointHooks receives events from checkpoint and verification operations.
type CheckpointHooks interface {
	// OnSnapshot records that a new best-cost snapshot was taken.
	OnSnapshot(ctx context.Context, id string, totalCost float64)

	// OnVerify records the outcome of a consistency verification pass.
	OnVerify(ctx context.Context, passed bool, worstDiscrepancy float64)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPlacerHooks is a no-op implementation of PlacerHooks.
type NoopPlacerHooks struct{}

func (NoopPlacerHooks) OnMoveCommitted(context.Context, string, float64)               {}
func (NoopPlacerHooks) OnMoveRejected(context.Context, string)                         {}
func (NoopPlacerHooks) OnTemperatureUpdate(context.Context, float64, float64, float64) {}
func (NoopPlacerHooks) OnStateTransition(context.Context, string, string)              {}

// NoopSolverHooks is a no-op implementation of SolverHooks.
type NoopSolverHooks struct{}

func (NoopSolverHooks) OnSystemBuilt(context.Context, int, int, time.Duration)          {}
func (NoopSolverHooks) OnSolveComplete(context.Context, int, int, time.Duration, error) {}

// NoopCheckpointHooks is a no-op implementation of CheckpointHooks.
type NoopCheckpointHooks struct{}

func (NoopCheckpointHooks) OnSnapshot(context.Context, string, float64) {}
func (NoopCheckpointHooks) OnVerify(context.Context, bool, float64)     {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	placerHooks     PlacerHooks     = NoopPlacerHooks{}
	solverHooks     SolverHooks     = NoopSolverHooks{}
	checkpointHooks CheckpointHooks = NoopCheckpointHooks{}
	hooksMu         sync.RWMutex
)

// SetPlacerHooks registers custom placer hooks.
// This should be called once at application startup before any placement runs.
func SetPlacerHooks(h PlacerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		placerHooks = h
	}
}

// SetSolverHooks registers custom solver hooks.
// This should be called once at application startup before any solver runs.
func SetSolverHooks(h SolverHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		solverHooks = h
	}
}

// SetCheckpointHooks registers custom checkpoint hooks.
// This should be called once at application startup before any placement runs.
func SetCheckpointHooks(h CheckpointHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		checkpointHooks = h
	}
}

// Placer returns the registered placer hooks.
func Placer() PlacerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return placerHooks
}

// Solver returns the registered solver hooks.
func Solver() SolverHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return solverHooks
}

// Checkpoint returns the registered checkpoint hooks.
func Checkpoint() CheckpointHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return checkpointHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	placerHooks = NoopPlacerHooks{}
	solverHooks = NoopSolverHooks{}
	checkpointHooks = NoopCheckpointHooks{}
}
