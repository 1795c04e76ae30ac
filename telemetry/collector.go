package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
)

// Collector observes a simulation between steps. It records stats and
// bookmarks every stats_every steps, exports positions when due and flushes
// perf samples. It never mutates the store.
type Collector struct {
	cfg *config.Config

	stats     *StatsCollector
	marks     *BookmarkDetector
	out       *OutputManager
	positions *PositionExporter
	perf      *PerfCollector

	last StepStats
}

// NewCollector creates a collector. Any of out, positions and perf may be nil.
// With out set, every bookmark also saves a snapshot under out's directory.
func NewCollector(cfg *config.Config, out *OutputManager, positions *PositionExporter, perf *PerfCollector) *Collector {
	return &Collector{
		cfg:       cfg,
		stats:     NewStatsCollector(),
		marks:     NewBookmarkDetector(10),
		out:       out,
		positions: positions,
		perf:      perf,
	}
}

// Observe is called with the store after every completed step. The step
// just completed is st.Timestep()-1.
func (c *Collector) Observe(st *store.Store) error {
	if err := c.positions.Export(st.Timestep()-1, st); err != nil {
		return err
	}

	every := c.cfg.Telemetry.StatsEvery
	if every <= 0 || st.Timestep()%every != 0 {
		return nil
	}

	c.last = c.stats.Collect(st)
	c.last.LogStats()
	if err := c.out.WriteStats(c.last); err != nil {
		return err
	}

	for _, b := range c.marks.Check(c.last, st.NumFlowers()) {
		b.LogBookmark()
		if err := c.out.WriteBookmark(b); err != nil {
			return err
		}
		if c.out == nil {
			continue
		}
		path, err := SaveSnapshot(NewSnapshot(c.cfg, st, &b), c.out.Path("snapshots"))
		if err != nil {
			return err
		}
		slog.Debug("snapshot saved", "path", path)
	}

	if c.perf != nil {
		ps := c.perf.Stats()
		ps.LogStats()
		if err := c.out.WritePerf(ps, st.Timestep()); err != nil {
			return err
		}
	}
	return nil
}

// Last returns the most recent stats record.
func (c *Collector) Last() StepStats { return c.last }
