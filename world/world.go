// Package world holds the explicitly-owned simulation state that every
// system operates on.
package world

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
)

// World is the complete simulation state for one replica.
type World struct {
	Bees    []components.Bee
	Flowers []components.Flower
	Dances  []components.Dance

	TotalNectar float64
	Timestep    int

	// Slice is the range of bees this replica writes during the local update.
	// It covers every bee outside distributed execution.
	Slice Slice
}

// Slice is a contiguous range of bee indices.
type Slice struct {
	Offset int
	Count  int
}

// End returns one past the last index.
func (s Slice) End() int { return s.Offset + s.Count }

// Contains reports whether index i falls in the slice.
func (s Slice) Contains(i int) bool { return i >= s.Offset && i < s.End() }

// Partition splits n bees across size workers and returns the slice for rank.
// The first n%size ranks get one extra bee.
func Partition(n, size, rank int) Slice {
	per, rem := n/size, n%size
	count := per
	if rank < rem {
		count++
	}
	return Slice{Offset: rank*per + min(rank, rem), Count: count}
}

// New creates the initial world. Bees are placed around the hive from
// cfg.Run.Seed and flowers across the world from cfg.Run.FlowerSeed, so every
// replica built from the same config is identical.
func New(cfg *config.Config) (*World, error) {
	nb, nf := cfg.Colony.Bees, cfg.Flowers.Count
	if nb <= 0 || nf <= 0 {
		return nil, fmt.Errorf("allocating world: need bees and flowers, got %d bees and %d flowers", nb, nf)
	}
	if cfg.Flowers.Capacity < 0 {
		return nil, fmt.Errorf("allocating world: negative flower capacity %d", cfg.Flowers.Capacity)
	}

	w := &World{
		Bees:    make([]components.Bee, nb),
		Flowers: make([]components.Flower, nf),
		Dances:  make([]components.Dance, 0, 64),
		Slice:   Slice{Count: nb},
	}

	beeRNG := rand.New(rand.NewPCG(uint64(cfg.Run.Seed), 0x6265))
	spread := cfg.Colony.SpawnSpread
	for i := range w.Bees {
		state := components.Idle
		if i < cfg.Derived.Scouts {
			state = components.Scout
		}
		w.Bees[i] = components.Bee{
			ID: int32(i),
			Pos: r2.Vec{
				X: cfg.Hive.X + uniform(beeRNG, -spread, spread),
				Y: cfg.Hive.Y + uniform(beeRNG, -spread, spread),
			},
			State:  state,
			Energy: cfg.Energy.Max,
		}
	}

	flowerRNG := rand.New(rand.NewPCG(uint64(cfg.Run.FlowerSeed), 0x666c))
	size := cfg.World.Size
	for i := range w.Flowers {
		pos := r2.Vec{X: uniform(flowerRNG, 0, size), Y: uniform(flowerRNG, 0, size)}
		w.Flowers[i] = components.NewFlower(i, pos, cfg.Flowers.NectarMax, cfg.Flowers.Capacity)
	}

	return w, nil
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Clone returns a deep copy of the world.
func (w *World) Clone() *World {
	cp := &World{
		Bees:        append([]components.Bee(nil), w.Bees...),
		Flowers:     make([]components.Flower, len(w.Flowers)),
		Dances:      append(make([]components.Dance, 0, cap(w.Dances)), w.Dances...),
		TotalNectar: w.TotalNectar,
		Timestep:    w.Timestep,
		Slice:       w.Slice,
	}
	for i := range w.Flowers {
		f := &w.Flowers[i]
		c := components.NewFlower(int(f.ID), f.Pos, f.Total, int(f.Capacity))
		c.SetNectar(f.Nectar())
		c.SetFeeding(f.Feeding())
		cp.Flowers[i] = c
	}
	return cp
}

// CountStates returns the number of bees in each state.
func (w *World) CountStates() [components.NumStates]int {
	var counts [components.NumStates]int
	for i := range w.Bees {
		counts[w.Bees[i].State]++
	}
	return counts
}
