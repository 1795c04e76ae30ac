// Package sim advances a colony one timestep at a time under one of three
// execution strategies: a single goroutine, a pool of goroutines sharing one
// world, or a set of ranks each holding a replica and exchanging state
// through a cluster communicator.
package sim

import (
	"context"

	"github.com/pthm-cable/hive/telemetry"
	"github.com/pthm-cable/hive/world"
)

// strategy advances the world by exactly one timestep. perf may be nil.
type strategy interface {
	step(ctx context.Context, perf *telemetry.PerfCollector) error
	// world is the canonical state after the last completed step.
	world() *world.World
	close() error
}
