package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/hive/cluster"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
	"github.com/pthm-cable/hive/telemetry"
	"github.com/pthm-cable/hive/world"
)

// Simulation drives one colony under a configured execution strategy and
// publishes every completed step to an entity store.
type Simulation struct {
	cfg   *config.Config
	strat strategy
	store *store.Store
	perf  *telemetry.PerfCollector
}

// New creates a simulation for cfg.Execution.Mode. The config must already
// be validated and must not change while the simulation runs.
func New(cfg *config.Config) (*Simulation, error) {
	var (
		s   strategy
		err error
	)
	switch cfg.Execution.Mode {
	case config.ModeSequential:
		var w *world.World
		if w, err = world.New(cfg); err == nil {
			s = newSequential(cfg, w)
		}
	case config.ModeShared:
		var w *world.World
		if w, err = world.New(cfg); err == nil {
			s = newParallel(cfg, w)
		}
	case config.ModeDistributed:
		s, err = newDistributed(cfg)
	default:
		err = fmt.Errorf("%w: unknown execution mode %q", config.ErrInvalid, cfg.Execution.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("creating simulation: %w", err)
	}
	return wrap(cfg, s), nil
}

// NewRank creates a simulation driving a single distributed rank over comm.
// Every rank of the group steps in lockstep; the caller owns the others.
func NewRank(cfg *config.Config, comm cluster.Comm) (*Simulation, error) {
	r, err := newRank(cfg, comm)
	if err != nil {
		return nil, fmt.Errorf("creating rank %d: %w", comm.Rank(), err)
	}
	return wrap(cfg, r), nil
}

func wrap(cfg *config.Config, s strategy) *Simulation {
	sim := &Simulation{
		cfg:   cfg,
		strat: s,
		store: store.New(s.world()),
		perf:  telemetry.NewPerfCollector(max(cfg.Telemetry.PerfWindow, 1)),
	}
	slog.Debug("simulation created",
		"mode", cfg.Execution.Mode,
		"bees", cfg.Colony.Bees,
		"flowers", cfg.Flowers.Count,
	)
	return sim
}

// Step advances the simulation by one timestep.
func (s *Simulation) Step(ctx context.Context) error {
	w := s.strat.world()
	if n := len(w.Dances); n != 0 {
		return fmt.Errorf("%w: %d dances left over before step %d", world.ErrInvariant, n, w.Timestep)
	}

	s.perf.StartTick()
	if err := s.strat.step(ctx, s.perf); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseCommit)
	s.store.Commit(w)
	if s.cfg.Execution.CheckInvariants {
		w.MustValidate(s.cfg.Energy.Max)
	}
	s.perf.EndTick()
	return nil
}

// Run advances up to steps timesteps, calling hook after each one. It stops
// early when ctx is cancelled or hook returns an error.
func (s *Simulation) Run(ctx context.Context, steps int, hook func(*store.Store) error) error {
	for range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
		if hook != nil {
			if err := hook(s.store); err != nil {
				return err
			}
		}
	}
	return nil
}

// TotalNectar returns the nectar collected so far.
func (s *Simulation) TotalNectar() float64 { return s.strat.world().TotalNectar }

// Timestep returns the number of completed steps.
func (s *Simulation) Timestep() int { return s.strat.world().Timestep }

// Store returns the read model of the last completed step.
func (s *Simulation) Store() *store.Store { return s.store }

// Perf returns the phase timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() *config.Config { return s.cfg }

// World returns the canonical state. Callers must not mutate it.
func (s *Simulation) World() *world.World { return s.strat.world() }

// Close stops workers and releases communicators.
func (s *Simulation) Close() error { return s.strat.close() }
