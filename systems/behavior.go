package systems

import (
	"math/rand/v2"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/world"
)

// Env is what one worker needs to advance bees: the world it mutates and
// the arbiters guarding the parts of it other workers share.
type Env struct {
	Cfg    *config.Config
	World  *world.World
	Sites  Arbiter
	Dances Registry
	Grid   *FlowerGrid
}

// NewEnv returns a single-goroutine environment over w.
func NewEnv(cfg *config.Config, w *world.World, grid *FlowerGrid) *Env {
	return &Env{
		Cfg:    cfg,
		World:  w,
		Sites:  NewSites(cfg, w.Flowers),
		Dances: NewDanceLog(w),
		Grid:   grid,
	}
}

// GridFor builds the flower grid sized for the scout and follower queries.
func GridFor(cfg *config.Config, w *world.World) *FlowerGrid {
	cell := max(cfg.Colony.VisionRange, cfg.Recruitment.SiteSearchRadius)
	return NewFlowerGrid(w.Flowers, cfg.World.Size, cell)
}

// InHive reports whether p is at or within the hive radius.
func InHive(cfg *config.Config, p r2.Vec) bool {
	return r2.Norm(r2.Sub(p, cfg.Derived.Hive)) <= cfg.Hive.Radius
}

// UpdateBee advances bee i by one tick. Harvested nectar goes to acc.
func (e *Env) UpdateBee(i int, r *rand.Rand, acc *float64) {
	cfg := e.Cfg
	b := &e.World.Bees[i]

	switch b.State {
	case components.Scout:
		e.scout(b, r)
	case components.Returning:
		e.returnHome(b)
	case components.Dancing:
		e.dance(b)
	case components.Follower:
		e.follow(b)
	case components.Foraging:
		e.forage(b, acc)
	case components.Idle:
	}

	if b.Energy <= 0 {
		if InHive(cfg, b.Pos) {
			b.Energy = cfg.Energy.Max
			b.State = components.Idle
			b.Recruiter = components.None
			atomic.StoreInt32(&b.Followers, 0)
			b.DanceTimer = 0
		} else {
			b.State = components.Returning
		}
		b.Target = components.None
	}

	b.Pos = clampPos(b.Pos, cfg.World.Size)
}

func (e *Env) scout(b *components.Bee, r *rand.Rand) {
	cfg := e.Cfg
	if !b.Target.Valid() {
		randomWalk(b, r, cfg.Colony.Speed, cfg.Colony.ExploreProbability, cfg.Colony.ExploreJump)
		flowers := e.World.Flowers
		if fi, ok := e.Grid.FirstWithNectar(flowers, b.Pos, cfg.Colony.VisionRange); ok {
			b.Target = components.RefTo(fi)
			b.NectarFound = flowers[fi].Nectar()
			b.State = components.Returning
		}
	}
	debit(b, cfg.Energy.Cost)
}

func (e *Env) returnHome(b *components.Bee) {
	cfg := e.Cfg
	moveToward(b, cfg.Derived.Hive, cfg.Colony.Speed, cfg.Energy.Cost)
	if !InHive(cfg, b.Pos) {
		return
	}

	// Nothing to advertise: unload and rest.
	if !b.Target.Valid() {
		b.State = components.Idle
		b.Recruiter = components.None
		return
	}
	b.State = components.Dancing
	b.DanceTimer = int32(cfg.Recruitment.DanceDuration)
	atomic.StoreInt32(&b.Followers, 0)
	e.Dances.Register(NewDance(cfg, e.World.Flowers, b))
}

func (e *Env) dance(b *components.Bee) {
	b.DanceTimer--
	if b.DanceTimer > 0 {
		return
	}
	if atomic.LoadInt32(&b.Followers) >= 1 {
		b.State = components.Foraging
	} else {
		b.State = components.Idle
		b.Target = components.None
	}
	atomic.StoreInt32(&b.Followers, 0)
	b.DanceTimer = 0
}

func (e *Env) follow(b *components.Bee) {
	cfg := e.Cfg
	dist := r2.Norm(r2.Sub(b.DanceTarget, b.Pos))
	moveToward(b, b.DanceTarget, cfg.Colony.Speed, cfg.Energy.Cost)

	if dist < cfg.Recruitment.ArrivalRadius {
		if fi, ok := e.Grid.FirstNear(e.World.Flowers, b.DanceTarget, cfg.Recruitment.SiteSearchRadius); ok {
			b.Target = components.RefTo(fi)
			b.State = components.Foraging
		} else {
			b.State = components.Returning
			b.Target = components.None
			b.Recruiter = components.None
		}
	}

	if b.Energy < cfg.Derived.LowEnergy {
		b.State = components.Returning
		b.Target = components.None
		b.Recruiter = components.None
	}
}

func (e *Env) forage(b *components.Bee, acc *float64) {
	fi, ok := b.Target.Get()
	if !ok {
		b.State = components.Idle
		b.Recruiter = components.None
		return
	}

	switch {
	case e.Sites.Extract(fi, b, acc):
		b.State = components.Returning
		b.Target = components.None
		b.Recruiter = components.None
	case b.Recruiter.Valid():
		b.State = components.Returning
		b.Target = components.None
		b.Recruiter = components.None
	default:
		b.State = components.Scout
		b.Target = components.None
	}
}
