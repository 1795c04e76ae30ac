package sim

import (
	"context"

	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/systems"
	"github.com/pthm-cable/hive/telemetry"
	"github.com/pthm-cable/hive/world"
)

// sequential runs every phase on the calling goroutine.
type sequential struct {
	cfg     *config.Config
	w       *world.World
	env     *systems.Env
	streams *systems.Streams
}

func newSequential(cfg *config.Config, w *world.World) *sequential {
	return &sequential{
		cfg:     cfg,
		w:       w,
		env:     systems.NewEnv(cfg, w, systems.GridFor(cfg, w)),
		streams: systems.NewStreams(cfg.Run.Seed),
	}
}

func (s *sequential) step(_ context.Context, perf *telemetry.PerfCollector) error {
	w := s.w
	t := w.Timestep

	perf.StartPhase(telemetry.PhaseUpdate)
	var harvested float64
	for i := range w.Bees {
		s.env.UpdateBee(i, s.streams.For(t, systems.PhaseUpdate, i), &harvested)
	}

	perf.StartPhase(telemetry.PhaseSelection)
	for i := range w.Bees {
		s.env.WatchDances(i, s.streams.For(t, systems.PhaseSelect, i), true)
	}

	perf.StartPhase(telemetry.PhaseSites)
	systems.Regenerate(w.Flowers, s.cfg.Flowers.RegenRate)

	perf.StartPhase(telemetry.PhaseReduce)
	finishStep(w, harvested)
	return nil
}

func (s *sequential) world() *world.World { return s.w }
func (s *sequential) close() error        { return nil }

// finishStep folds the step's harvest into the total and closes the step.
func finishStep(w *world.World, harvested float64) {
	w.TotalNectar += harvested
	w.Dances = w.Dances[:0]
	w.Timestep++
}
