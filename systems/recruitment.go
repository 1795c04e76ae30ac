package systems

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/world"
)

// minAttraction is the total attractiveness below which no dance is chosen.
const minAttraction = 1e-4

// Registry collects the dances registered during a timestep.
type Registry interface {
	Register(d components.Dance)
}

// DanceLog appends dances to a world from a single goroutine.
type DanceLog struct {
	w *world.World
}

// NewDanceLog returns an unlocked registry.
func NewDanceLog(w *world.World) *DanceLog { return &DanceLog{w: w} }

func (l *DanceLog) Register(d components.Dance) {
	l.w.Dances = append(l.w.Dances, d)
}

// SyncDanceLog appends dances from concurrent workers.
type SyncDanceLog struct {
	mu sync.Mutex
	w  *world.World
}

// NewSyncDanceLog returns a mutex-guarded registry.
func NewSyncDanceLog(w *world.World) *SyncDanceLog { return &SyncDanceLog{w: w} }

func (l *SyncDanceLog) Register(d components.Dance) {
	l.mu.Lock()
	l.w.Dances = append(l.w.Dances, d)
	l.mu.Unlock()
}

// NewDance builds the dance a returning bee performs for its target flower.
func NewDance(cfg *config.Config, flowers []components.Flower, b *components.Bee) components.Dance {
	f := &flowers[b.Target.Index()]
	return components.Dance{
		Owner:    b.ID,
		Target:   f.Pos,
		Quality:  min(max(b.NectarFound/cfg.Flowers.NectarMax, 0), 1),
		Distance: r2.Norm(r2.Sub(f.Pos, cfg.Derived.Hive)),
	}
}

// Attractiveness scores a dance. Followers feed back into the score, so
// popular dances recruit faster.
func Attractiveness(cfg *config.Config, d *components.Dance) float64 {
	rc := &cfg.Recruitment
	followers := float64(atomic.LoadInt32(&d.Followers))
	return d.Quality * rc.QualityWeight *
		(1 / (1 + d.Distance/rc.DistanceScale)) *
		(1 + rc.FollowerBonus*followers)
}

// TotalAttractiveness sums the scores of all dances.
func TotalAttractiveness(cfg *config.Config, dances []components.Dance) float64 {
	var total float64
	for i := range dances {
		total += Attractiveness(cfg, &dances[i])
	}
	return total
}

// SelectByDraw walks the roulette wheel and returns the first dance whose
// cumulative score reaches draw. The last dance absorbs rounding overshoot.
func SelectByDraw(cfg *config.Config, dances []components.Dance, draw float64) (int, bool) {
	if len(dances) == 0 {
		return 0, false
	}
	var cum float64
	for i := range dances {
		cum += Attractiveness(cfg, &dances[i])
		if cum >= draw {
			return i, true
		}
	}
	return len(dances) - 1, true
}

// Select picks a dance with probability proportional to attractiveness.
func Select(cfg *config.Config, dances []components.Dance, r *rand.Rand) (int, bool) {
	total := TotalAttractiveness(cfg, dances)
	if total < minAttraction {
		return 0, false
	}
	return SelectByDraw(cfg, dances, r.Float64()*total)
}

// WatchDances lets idle bee i consider the current dances. When apply is
// false the choice is still made and counted on the dance and its owner,
// but bee i itself is left untouched; distributed replicas use this for
// bees owned by other workers so follower counts agree everywhere.
func (e *Env) WatchDances(i int, r *rand.Rand, apply bool) {
	w := e.World
	b := &w.Bees[i]
	if b.State != components.Idle || len(w.Dances) == 0 {
		return
	}
	if r.Float64() >= e.Cfg.Recruitment.DecisionProbability {
		return
	}
	k, ok := Select(e.Cfg, w.Dances, r)
	if !ok {
		return
	}

	d := &w.Dances[k]
	atomic.AddInt32(&d.Followers, 1)
	atomic.AddInt32(&w.Bees[d.Owner].Followers, 1)
	if !apply {
		return
	}
	b.State = components.Follower
	b.DanceTarget = d.Target
	b.Recruiter = components.RefTo(int(d.Owner))
	b.Target = components.None
}
