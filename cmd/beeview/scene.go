package main

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
	"github.com/pthm-cable/hive/telemetry"
)

type beeDot struct {
	X, Y  float32
	State components.BeeState
}

type flowerDot struct {
	X, Y float32
	Fill float32 // Remaining nectar fraction
}

// scene is everything the viewer draws for one frame.
type scene struct {
	Bees        []beeDot
	Flowers     []flowerDot
	HiveX       float32
	HiveY       float32
	HiveRadius  float32
	Timestep    int
	TotalNectar float64
	Counts      [components.NumStates]int
}

func sceneFromStore(cfg *config.Config, st *store.Store) scene {
	sc := scene{
		Bees:        make([]beeDot, 0, st.NumBees()),
		Flowers:     make([]flowerDot, 0, st.NumFlowers()),
		HiveX:       float32(cfg.Hive.X),
		HiveY:       float32(cfg.Hive.Y),
		HiveRadius:  float32(cfg.Hive.Radius),
		Timestep:    st.Timestep(),
		TotalNectar: st.TotalNectar(),
		Counts:      st.StateCounts(),
	}
	st.EachFlower(func(f store.FlowerView) {
		sc.Flowers = append(sc.Flowers, flowerDot{X: float32(f.Pos.X), Y: float32(f.Pos.Y), Fill: fill(f.Nectar, f.Total)})
	})
	st.EachBee(func(b store.BeeView) {
		sc.Bees = append(sc.Bees, beeDot{X: float32(b.Pos.X), Y: float32(b.Pos.Y), State: b.State})
	})
	return sc
}

func sceneFromSnapshot(snap *telemetry.Snapshot) scene {
	sc := scene{
		Bees:        make([]beeDot, 0, len(snap.Bees)),
		Flowers:     make([]flowerDot, 0, len(snap.Flowers)),
		HiveX:       float32(snap.HiveX),
		HiveY:       float32(snap.HiveY),
		HiveRadius:  float32(snap.HiveRadius),
		Timestep:    snap.Timestep,
		TotalNectar: snap.TotalNectar,
	}
	for _, f := range snap.Flowers {
		sc.Flowers = append(sc.Flowers, flowerDot{X: float32(f.X), Y: float32(f.Y), Fill: fill(f.Nectar, f.Total)})
	}
	for _, b := range snap.Bees {
		sc.Bees = append(sc.Bees, beeDot{X: float32(b.X), Y: float32(b.Y), State: b.State})
		if int(b.State) < components.NumStates {
			sc.Counts[b.State]++
		}
	}
	return sc
}

func fill(nectar, total float64) float32 {
	if total <= 0 {
		return 0
	}
	return float32(min(max(nectar/total, 0), 1))
}

var stateColors = [components.NumStates]rl.Color{
	components.Idle:      rl.Gray,
	components.Scout:     rl.SkyBlue,
	components.Returning: rl.Orange,
	components.Dancing:   rl.Magenta,
	components.Follower:  rl.Lime,
	components.Foraging:  rl.Gold,
}

func stateColor(s components.BeeState) rl.Color {
	if int(s) < components.NumStates {
		return stateColors[s]
	}
	return rl.White
}
