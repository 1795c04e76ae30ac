// Package components defines the bee, flower and dance records and the
// ECS components that publish them.
package components

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r2"
)

// BeeState is the behavioral state of a bee.
type BeeState uint8

const (
	Idle BeeState = iota
	Scout
	Returning
	Dancing
	Follower
	Foraging

	NumStates = int(Foraging) + 1
)

var stateNames = [NumStates]string{"IDLE", "SCOUT", "RETURNING", "DANCING", "FOLLOWER", "FORAGING"}

func (s BeeState) String() string {
	if int(s) < NumStates {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Ref is an optional index into a collection. The zero value is absent.
type Ref struct {
	idx int32
	ok  bool
}

// RefTo returns a present reference to index i.
func RefTo(i int) Ref {
	return Ref{idx: int32(i), ok: true}
}

// None is the absent reference.
var None Ref

// Get returns the index and whether the reference is present.
func (r Ref) Get() (int, bool) {
	return int(r.idx), r.ok
}

// Valid reports whether the reference is present.
func (r Ref) Valid() bool { return r.ok }

// Index returns the referenced index. Panics if absent.
func (r Ref) Index() int {
	if !r.ok {
		panic("components: Index on absent Ref")
	}
	return int(r.idx)
}

// Bee is one agent of the colony.
type Bee struct {
	ID     int32
	Pos    r2.Vec
	Vel    r2.Vec
	State  BeeState
	Energy float64

	Target    Ref // flower being exploited or advertised
	Recruiter Ref // bee whose dance is being followed

	DanceTarget r2.Vec  // advertised location, valid while following
	NectarFound float64 // nectar seen at discovery
	Followers   int32   // valid while dancing; touched atomically during selection
	DanceTimer  int32   // valid while dancing
}

// Flower is a capacity-limited nectar source.
// Nectar and the feeder count are read and written atomically so that
// scouts can scan flowers while foragers hold the flower lock.
type Flower struct {
	ID       int32
	Pos      r2.Vec
	Total    float64
	Capacity int32

	nectar  uint64 // float64 bits
	feeding int32
}

// NewFlower returns a flower at full nectar.
func NewFlower(id int, pos r2.Vec, total float64, capacity int) Flower {
	f := Flower{ID: int32(id), Pos: pos, Total: total, Capacity: int32(capacity)}
	f.SetNectar(total)
	return f
}

// Nectar returns the nectar currently available.
func (f *Flower) Nectar() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.nectar))
}

// SetNectar stores the available nectar.
func (f *Flower) SetNectar(v float64) {
	atomic.StoreUint64(&f.nectar, math.Float64bits(v))
}

// Feeding returns the number of bees currently feeding.
func (f *Flower) Feeding() int32 {
	return atomic.LoadInt32(&f.feeding)
}

// AddFeeding adjusts the feeder count and returns the new value.
func (f *Flower) AddFeeding(delta int32) int32 {
	return atomic.AddInt32(&f.feeding, delta)
}

// SetFeeding overwrites the feeder count.
func (f *Flower) SetFeeding(v int32) {
	atomic.StoreInt32(&f.feeding, v)
}

// Dance is a waggle dance advertising a flower location for one timestep.
type Dance struct {
	Owner     int32  // dancing bee
	Target    r2.Vec // copied, survives the owner retargeting
	Quality   float64
	Distance  float64 // hive to target
	Followers int32   // touched atomically during selection
}
