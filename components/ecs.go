package components

import "gonum.org/v1/gonum/spatial/r2"

// Position is the ECS position component.
type Position r2.Vec

// Velocity is the ECS velocity component.
type Velocity r2.Vec

// BeeStatus is the published per-bee state.
type BeeStatus struct {
	ID          int32
	State       BeeState
	Energy      float64
	Target      Ref
	NectarFound float64
}

// FlowerStatus is the published per-flower state.
type FlowerStatus struct {
	ID       int32
	Nectar   float64
	Total    float64
	Feeding  int32
	Capacity int32
}
