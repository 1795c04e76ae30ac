package systems

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/world"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Colony.Bees = 4
	cfg.Flowers.Count = 2
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// testEnv builds a world with the given flowers and n idle bees at the hive.
func testEnv(cfg *config.Config, n int, flowers ...r2.Vec) *Env {
	w := &world.World{
		Bees:    make([]components.Bee, n),
		Flowers: make([]components.Flower, len(flowers)),
		Slice:   world.Slice{Count: n},
	}
	for i := range w.Bees {
		w.Bees[i] = components.Bee{ID: int32(i), Pos: cfg.Derived.Hive, Energy: cfg.Energy.Max}
	}
	for i, p := range flowers {
		w.Flowers[i] = components.NewFlower(i, p, cfg.Flowers.NectarMax, cfg.Flowers.Capacity)
	}
	return NewEnv(cfg, w, GridFor(cfg, w))
}
