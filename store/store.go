// Package store publishes simulation state as ECS entities. It is the
// read model collaborators observe between steps; only Commit writes it.
package store

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/world"
)

// BeeView is the read-only snapshot of one bee.
type BeeView struct {
	ID     int32
	Pos    r2.Vec
	Vel    r2.Vec
	State  components.BeeState
	Energy float64
	Target components.Ref
}

// FlowerView is the read-only snapshot of one flower.
type FlowerView struct {
	ID       int32
	Pos      r2.Vec
	Nectar   float64
	Total    float64
	Feeding  int32
	Capacity int32
}

// Store holds one entity per bee and per flower. Entities are created once
// and never removed.
type Store struct {
	world *ecs.World

	beeMapper    *ecs.Map3[components.Position, components.Velocity, components.BeeStatus]
	flowerMapper *ecs.Map2[components.Position, components.FlowerStatus]
	beeFilter    *ecs.Filter3[components.Position, components.Velocity, components.BeeStatus]
	flowerFilter *ecs.Filter2[components.Position, components.FlowerStatus]

	posMap    *ecs.Map1[components.Position]
	velMap    *ecs.Map1[components.Velocity]
	beeMap    *ecs.Map1[components.BeeStatus]
	flowerMap *ecs.Map1[components.FlowerStatus]

	bees    []ecs.Entity
	flowers []ecs.Entity

	totalNectar float64
	timestep    int
}

// New creates entities for every bee and flower in w and publishes w.
func New(w *world.World) *Store {
	ew := ecs.NewWorld()
	s := &Store{
		world:        ew,
		beeMapper:    ecs.NewMap3[components.Position, components.Velocity, components.BeeStatus](ew),
		flowerMapper: ecs.NewMap2[components.Position, components.FlowerStatus](ew),
		beeFilter:    ecs.NewFilter3[components.Position, components.Velocity, components.BeeStatus](ew),
		flowerFilter: ecs.NewFilter2[components.Position, components.FlowerStatus](ew),
		posMap:       ecs.NewMap1[components.Position](ew),
		velMap:       ecs.NewMap1[components.Velocity](ew),
		beeMap:       ecs.NewMap1[components.BeeStatus](ew),
		flowerMap:    ecs.NewMap1[components.FlowerStatus](ew),
		bees:         make([]ecs.Entity, len(w.Bees)),
		flowers:      make([]ecs.Entity, len(w.Flowers)),
	}

	for i := range w.Bees {
		pos, vel, status := beeComponents(&w.Bees[i])
		s.bees[i] = s.beeMapper.NewEntity(&pos, &vel, &status)
	}
	for i := range w.Flowers {
		pos, status := flowerComponents(&w.Flowers[i])
		s.flowers[i] = s.flowerMapper.NewEntity(&pos, &status)
	}
	s.totalNectar = w.TotalNectar
	s.timestep = w.Timestep
	return s
}

func beeComponents(b *components.Bee) (components.Position, components.Velocity, components.BeeStatus) {
	return components.Position(b.Pos), components.Velocity(b.Vel), components.BeeStatus{
		ID:          b.ID,
		State:       b.State,
		Energy:      b.Energy,
		Target:      b.Target,
		NectarFound: b.NectarFound,
	}
}

func flowerComponents(f *components.Flower) (components.Position, components.FlowerStatus) {
	return components.Position(f.Pos), components.FlowerStatus{
		ID:       f.ID,
		Nectar:   f.Nectar(),
		Total:    f.Total,
		Feeding:  f.Feeding(),
		Capacity: f.Capacity,
	}
}

// Commit publishes the state of w. The world must have the same bees and
// flowers the store was created with.
func (s *Store) Commit(w *world.World) {
	for i, e := range s.bees {
		pos, vel, status := beeComponents(&w.Bees[i])
		*s.posMap.Get(e) = pos
		*s.velMap.Get(e) = vel
		*s.beeMap.Get(e) = status
	}
	for i, e := range s.flowers {
		f := &w.Flowers[i]
		st := s.flowerMap.Get(e)
		st.Nectar = f.Nectar()
		st.Feeding = f.Feeding()
	}
	s.totalNectar = w.TotalNectar
	s.timestep = w.Timestep
}

// TotalNectar returns the nectar collected so far.
func (s *Store) TotalNectar() float64 { return s.totalNectar }

// Timestep returns the number of completed steps.
func (s *Store) Timestep() int { return s.timestep }

// NumBees returns the bee count.
func (s *Store) NumBees() int { return len(s.bees) }

// NumFlowers returns the flower count.
func (s *Store) NumFlowers() int { return len(s.flowers) }

// Bee returns the snapshot of bee id.
func (s *Store) Bee(id int) BeeView {
	e := s.bees[id]
	return beeView(s.posMap.Get(e), s.velMap.Get(e), s.beeMap.Get(e))
}

// Flower returns the snapshot of flower id.
func (s *Store) Flower(id int) FlowerView {
	e := s.flowers[id]
	return flowerView(s.posMap.Get(e), s.flowerMap.Get(e))
}

// EachBee calls fn for every bee.
func (s *Store) EachBee(fn func(BeeView)) {
	query := s.beeFilter.Query()
	for query.Next() {
		pos, vel, status := query.Get()
		fn(beeView(pos, vel, status))
	}
}

// EachFlower calls fn for every flower.
func (s *Store) EachFlower(fn func(FlowerView)) {
	query := s.flowerFilter.Query()
	for query.Next() {
		pos, status := query.Get()
		fn(flowerView(pos, status))
	}
}

// StateCounts returns the number of bees in each state.
func (s *Store) StateCounts() [components.NumStates]int {
	var counts [components.NumStates]int
	query := s.beeFilter.Query()
	for query.Next() {
		_, _, status := query.Get()
		counts[status.State]++
	}
	return counts
}

func beeView(pos *components.Position, vel *components.Velocity, st *components.BeeStatus) BeeView {
	return BeeView{
		ID:     st.ID,
		Pos:    r2.Vec(*pos),
		Vel:    r2.Vec(*vel),
		State:  st.State,
		Energy: st.Energy,
		Target: st.Target,
	}
}

func flowerView(pos *components.Position, st *components.FlowerStatus) FlowerView {
	return FlowerView{
		ID:       st.ID,
		Pos:      r2.Vec(*pos),
		Nectar:   st.Nectar,
		Total:    st.Total,
		Feeding:  st.Feeding,
		Capacity: st.Capacity,
	}
}
