package main

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/sim"
)

// FitnessEvaluator runs short simulations and scores parameter vectors.
type FitnessEvaluator struct {
	params     *ParamVector
	steps      int
	seeds      []int64
	baseConfig *config.Config

	mu         sync.Mutex
	lastNectar float64 // mean nectar from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, steps int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		steps:      steps,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastNectar returns the mean nectar collected in the most recent evaluation.
func (fe *FitnessEvaluator) LastNectar() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastNectar
}

// Evaluate computes fitness for raw parameter values (lower = better).
// Fitness is the negative mean nectar collected across seeds.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	totals := make([]float64, len(fe.seeds))

	// Seeds run in parallel, each on its own sequential simulation.
	g, ctx := errgroup.WithContext(ctx)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			cfg := fe.baseConfig.Clone()
			cfg.Run.Seed = seed
			cfg.Execution.Mode = config.ModeSequential
			if err := fe.params.ApplyToConfig(cfg, x); err != nil {
				return err
			}
			s, err := sim.New(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Run(ctx, fe.steps, nil); err != nil {
				return err
			}
			totals[i] = s.TotalNectar()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var sum float64
	for _, t := range totals {
		sum += t
	}
	mean := sum / float64(len(totals))
	fitness := -mean

	fe.mu.Lock()
	fe.lastNectar = mean
	fe.mu.Unlock()
	return fitness, nil
}
