// Package systems implements bee behavior, flower arbitration and dance
// recruitment over a world.World.
package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
)

// FlowerGrid buckets flower indices by cell. Flowers never move, so the
// grid is built once per world.
type FlowerGrid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]int32 // ascending flower indices per cell
}

// NewFlowerGrid indexes flowers on a square world of the given size.
func NewFlowerGrid(flowers []components.Flower, size, cellSize float64) *FlowerGrid {
	if cellSize <= 0 {
		cellSize = size
	}
	cols := int(size/cellSize) + 1
	rows := cols

	g := &FlowerGrid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]int32, cols*rows),
	}
	for i := range flowers {
		idx := g.cellIndex(flowers[i].Pos)
		g.cells[idx] = append(g.cells[idx], int32(i))
	}
	return g
}

func (g *FlowerGrid) cellIndex(p r2.Vec) int {
	col := clampInt(int(p.X/g.cellSize), 0, g.cols-1)
	row := clampInt(int(p.Y/g.cellSize), 0, g.rows-1)
	return row*g.cols + col
}

// span returns the clamped cell range covering [v-r, v+r].
func (g *FlowerGrid) span(v, r float64, n int) (lo, hi int) {
	lo = int(math.Floor((v - r) / g.cellSize))
	hi = int(math.Floor((v + r) / g.cellSize))
	return max(lo, 0), min(hi, n-1)
}

// FirstWithNectar returns the lowest-index flower strictly within radius of
// p that has nectar left.
func (g *FlowerGrid) FirstWithNectar(flowers []components.Flower, p r2.Vec, radius float64) (int, bool) {
	return g.first(flowers, p, radius, true)
}

// FirstNear returns the lowest-index flower strictly within radius of p.
func (g *FlowerGrid) FirstNear(flowers []components.Flower, p r2.Vec, radius float64) (int, bool) {
	return g.first(flowers, p, radius, false)
}

func (g *FlowerGrid) first(flowers []components.Flower, p r2.Vec, radius float64, needNectar bool) (int, bool) {
	c0, c1 := g.span(p.X, radius, g.cols)
	r0, r1 := g.span(p.Y, radius, g.rows)
	rSq := radius * radius
	best := int32(math.MaxInt32)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, fi := range g.cells[row*g.cols+col] {
				if fi >= best {
					break
				}
				f := &flowers[fi]
				if r2.Norm2(r2.Sub(f.Pos, p)) >= rSq {
					continue
				}
				if needNectar && f.Nectar() <= 0 {
					continue
				}
				best = fi
				break
			}
		}
	}

	if best == math.MaxInt32 {
		return 0, false
	}
	return int(best), true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
