package world

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/hive/components"
)

// ErrInvariant is wrapped by every error returned from Validate.
var ErrInvariant = errors.New("invariant violated")

// maxReported caps the number of violations collected by Validate.
const maxReported = 16

// Validate checks the state invariants that must hold between steps:
// energy within [0, maxEnergy], nectar within [0, total], feeders within
// [0, capacity], and every present reference pointing at a live entity.
func (w *World) Validate(maxEnergy float64) error {
	var errs []error
	fail := func(format string, args ...any) {
		if len(errs) < maxReported {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...))
		}
	}

	nb, nf := len(w.Bees), len(w.Flowers)
	for i := range w.Bees {
		b := &w.Bees[i]
		if int(b.ID) != i {
			fail("bee %d has id %d", i, b.ID)
		}
		if !(b.Energy >= 0 && b.Energy <= maxEnergy) {
			fail("bee %d energy %v outside [0, %v]", i, b.Energy, maxEnergy)
		}
		if !finite(b.Pos.X) || !finite(b.Pos.Y) {
			fail("bee %d position %v not finite", i, b.Pos)
		}
		if int(b.State) >= components.NumStates {
			fail("bee %d has unknown state %d", i, b.State)
		}
		if idx, ok := b.Target.Get(); ok && (idx < 0 || idx >= nf) {
			fail("bee %d targets flower %d of %d", i, idx, nf)
		}
		if idx, ok := b.Recruiter.Get(); ok && (idx < 0 || idx >= nb) {
			fail("bee %d follows bee %d of %d", i, idx, nb)
		}
		if b.Followers < 0 || b.DanceTimer < 0 {
			fail("bee %d has negative dance counters (%d followers, timer %d)", i, b.Followers, b.DanceTimer)
		}
	}

	for i := range w.Flowers {
		f := &w.Flowers[i]
		nectar := f.Nectar()
		if !(nectar >= 0 && nectar <= f.Total) {
			fail("flower %d nectar %v outside [0, %v]", i, nectar, f.Total)
		}
		if f.Capacity < 0 {
			fail("flower %d has negative capacity %d", i, f.Capacity)
		}
		if fd := f.Feeding(); fd < 0 || fd > f.Capacity {
			fail("flower %d has %d feeders, capacity %d", i, fd, f.Capacity)
		}
	}

	for i := range w.Dances {
		d := &w.Dances[i]
		if d.Owner < 0 || int(d.Owner) >= nb {
			fail("dance %d owned by bee %d of %d", i, d.Owner, nb)
		}
		if d.Followers < 0 {
			fail("dance %d has %d followers", i, d.Followers)
		}
	}

	return errors.Join(errs...)
}

// MustValidate panics if Validate reports a violation.
func (w *World) MustValidate(maxEnergy float64) {
	if err := w.Validate(maxEnergy); err != nil {
		panic(fmt.Sprintf("world: timestep %d: %v", w.Timestep, err))
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
