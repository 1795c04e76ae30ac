package systems

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
)

// minHeading is the shortest direction vector that gets normalized.
const minHeading = 1e-4

// heading returns the unit vector from p to target, or zero when they
// (nearly) coincide.
func heading(p, target r2.Vec) r2.Vec {
	d := r2.Sub(target, p)
	n := r2.Norm(d)
	if n <= minHeading {
		return r2.Vec{}
	}
	return r2.Scale(1/n, d)
}

// moveToward steps b toward target at the given speed and pays the tick cost.
func moveToward(b *components.Bee, target r2.Vec, speed, cost float64) {
	b.Vel = r2.Scale(speed, heading(b.Pos, target))
	b.Pos = r2.Add(b.Pos, b.Vel)
	debit(b, cost)
}

// randomWalk takes a short step, or with probability explore a step jump
// times longer.
func randomWalk(b *components.Bee, r *rand.Rand, speed, explore, jump float64) {
	step := speed
	if r.Float64() < explore {
		step *= jump
	}
	b.Vel = r2.Vec{X: uniform(r, -step, step), Y: uniform(r, -step, step)}
	b.Pos = r2.Add(b.Pos, b.Vel)
}

func debit(b *components.Bee, cost float64) {
	b.Energy = max(b.Energy-cost, 0)
}

func clampPos(p r2.Vec, size float64) r2.Vec {
	return r2.Vec{X: min(max(p.X, 0), size), Y: min(max(p.Y, 0), size)}
}
