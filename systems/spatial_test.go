package systems

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
)

// linearFirst is the reference scan the grid must agree with.
func linearFirst(flowers []components.Flower, p r2.Vec, radius float64, needNectar bool) (int, bool) {
	for i := range flowers {
		f := &flowers[i]
		if r2.Norm2(r2.Sub(f.Pos, p)) < radius*radius && (!needNectar || f.Nectar() > 0) {
			return i, true
		}
	}
	return 0, false
}

func TestFlowerGridMatchesLinearScan(t *testing.T) {
	const size = 1000.0
	r := rand.New(rand.NewPCG(3, 4))

	flowers := make([]components.Flower, 400)
	for i := range flowers {
		flowers[i] = components.NewFlower(i, r2.Vec{X: r.Float64() * size, Y: r.Float64() * size}, 5, 5)
		if r.Float64() < 0.3 {
			flowers[i].SetNectar(0)
		}
	}
	// Edge of the world
	flowers[0].Pos = r2.Vec{X: size, Y: size}

	grid := NewFlowerGrid(flowers, size, 20)

	for q := 0; q < 5000; q++ {
		p := r2.Vec{X: r.Float64()*(size+100) - 50, Y: r.Float64()*(size+100) - 50}
		radius := 5 + r.Float64()*40
		for _, need := range []bool{true, false} {
			wantIdx, wantOK := linearFirst(flowers, p, radius, need)
			var gotIdx int
			var gotOK bool
			if need {
				gotIdx, gotOK = grid.FirstWithNectar(flowers, p, radius)
			} else {
				gotIdx, gotOK = grid.FirstNear(flowers, p, radius)
			}
			if gotOK != wantOK || (wantOK && gotIdx != wantIdx) {
				t.Fatalf("query %v r=%.2f nectar=%v: grid (%d, %v), linear (%d, %v)",
					p, radius, need, gotIdx, gotOK, wantIdx, wantOK)
			}
		}
	}
}

func TestFlowerGridStrictRadius(t *testing.T) {
	flowers := []components.Flower{components.NewFlower(0, r2.Vec{X: 120, Y: 100}, 5, 5)}
	grid := NewFlowerGrid(flowers, 1000, 20)

	if _, ok := grid.FirstNear(flowers, r2.Vec{X: 100, Y: 100}, 20); ok {
		t.Error("flower exactly at the radius was found")
	}
	if _, ok := grid.FirstNear(flowers, r2.Vec{X: 100.5, Y: 100}, 20); !ok {
		t.Error("flower inside the radius was not found")
	}
}
