package systems

import (
	"sync"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
)

// Arbiter admits bees to flowers and performs extraction.
type Arbiter interface {
	// Extract attempts one harvest from flower site on behalf of b. On
	// success the harvested amount is added to acc and b gains energy.
	Extract(site int, b *components.Bee, acc *float64) bool
}

// harvest runs the admission and extraction rule on one flower. Callers
// that share flowers across goroutines must serialize calls per flower.
// A feeder is admitted and released within one call, so under that
// serialization the capacity bound holds structurally; it also means a
// capacity of 0 admits no one.
func harvest(cfg *config.Config, f *components.Flower, b *components.Bee, acc *float64) bool {
	nectar := f.Nectar()
	if f.Feeding() >= f.Capacity || nectar <= 0 {
		return false
	}

	f.AddFeeding(1)
	amount := min(cfg.Flowers.MaxHarvest, nectar)
	f.SetNectar(nectar - amount)
	*acc += amount
	b.Energy = min(b.Energy+amount*cfg.Flowers.EnergyYield, cfg.Energy.Max)
	f.AddFeeding(-1)
	return true
}

// Sites arbitrates a flower slice owned by a single goroutine.
type Sites struct {
	cfg     *config.Config
	flowers []components.Flower
}

// NewSites returns an unlocked arbiter.
func NewSites(cfg *config.Config, flowers []components.Flower) *Sites {
	return &Sites{cfg: cfg, flowers: flowers}
}

func (s *Sites) Extract(site int, b *components.Bee, acc *float64) bool {
	return harvest(s.cfg, &s.flowers[site], b, acc)
}

// LockedSites arbitrates flowers shared by concurrent workers with one
// mutex per flower.
type LockedSites struct {
	cfg     *config.Config
	flowers []components.Flower
	locks   []sync.Mutex
}

// NewLockedSites returns a per-flower locking arbiter.
func NewLockedSites(cfg *config.Config, flowers []components.Flower) *LockedSites {
	return &LockedSites{
		cfg:     cfg,
		flowers: flowers,
		locks:   make([]sync.Mutex, len(flowers)),
	}
}

func (s *LockedSites) Extract(site int, b *components.Bee, acc *float64) bool {
	mu := &s.locks[site]
	mu.Lock()
	defer mu.Unlock()
	return harvest(s.cfg, &s.flowers[site], b, acc)
}

// Regenerate adds rate nectar to every flower, clamped to its total.
// It must run after every extraction of the timestep has finished.
func Regenerate(flowers []components.Flower, rate float64) {
	for i := range flowers {
		f := &flowers[i]
		f.SetNectar(min(f.Nectar()+rate, f.Total))
	}
}
