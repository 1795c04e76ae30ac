package systems

import "math/rand/v2"

// Phase separates the random draws of different step phases.
type Phase uint64

const (
	PhaseUpdate Phase = iota + 1
	PhaseSelect
)

// Streams is a per-worker random source. It is reseeded for every
// (timestep, phase, bee), so a bee draws the same numbers no matter which
// worker runs it or in what order.
type Streams struct {
	seed uint64
	src  rand.PCG
	rng  *rand.Rand
}

// NewStreams returns a stream set for the given run seed.
func NewStreams(seed int64) *Streams {
	s := &Streams{seed: uint64(seed)}
	s.rng = rand.New(&s.src)
	return s
}

// For positions the stream for one bee and returns it.
// The returned generator is only valid until the next call.
func (s *Streams) For(step int, phase Phase, bee int) *rand.Rand {
	hi := splitmix(s.seed ^ splitmix(uint64(step)<<8|uint64(phase)))
	lo := splitmix(hi ^ uint64(bee))
	s.src.Seed(hi, lo)
	return s.rng
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
