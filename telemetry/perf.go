package telemetry

import (
	"log/slog"
	"slices"
	"time"
)

// Phase identifies a timed section of a simulation step.
type Phase uint8

// Phases in step order.
const (
	PhaseUpdate    Phase = iota // behavior state machine over bees
	PhaseGather                 // bee and dance exchange between ranks
	PhaseSelection              // idle bees watch dances
	PhaseSites                  // flower reconciliation and regeneration
	PhaseReduce                 // nectar total reduction
	PhaseCommit                 // publishing to the entity store

	NumPhases = int(PhaseCommit) + 1
)

var phaseNames = [NumPhases]string{"update", "gather", "selection", "sites", "reduce", "commit"}

func (p Phase) String() string {
	if int(p) < NumPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// PerfSample holds timing data for a single tick.
type PerfSample struct {
	Tick   time.Duration
	Phases [NumPhases]time.Duration
}

// PerfCollector tracks step timing over a rolling window. It is not safe
// for concurrent use; in a distributed run only one rank records.
type PerfCollector struct {
	samples []PerfSample // ring buffer
	next    int
	filled  int

	cur        PerfSample
	tickStart  time.Time
	phaseStart time.Time
	inPhase    bool
	phase      Phase

	// Frame timing (for graphics mode)
	lastFrame     time.Time
	frameDuration time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{samples: make([]PerfSample, windowSize)}
}

// StartTick begins timing a new simulation tick.
// All recording methods are no-ops on a nil collector.
func (p *PerfCollector) StartTick() {
	if p == nil {
		return
	}
	p.tickStart = time.Now()
	p.cur = PerfSample{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts timing phase.
// A phase may be entered more than once per tick; its times add up.
func (p *PerfCollector) StartPhase(phase Phase) {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = phase
	p.inPhase = true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && int(p.phase) < NumPhases {
		p.cur.Phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.cur.Tick = now.Sub(p.tickStart)

	p.samples[p.next] = p.cur
	p.next = (p.next + 1) % len(p.samples)
	p.filled = min(p.filled+1, len(p.samples))
}

// RecordFrame records frame timing for graphics mode.
func (p *PerfCollector) RecordFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frameDuration = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	Samples int

	// Tick timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P90TickDuration time.Duration

	// Per-phase average duration and share of the average tick
	PhaseAvg [NumPhases]time.Duration
	PhasePct [NumPhases]float64

	TicksPerSecond float64

	// Frame timing (graphics mode)
	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the samples in the current window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p == nil {
		return s
	}
	s.FrameDuration = p.frameDuration
	if p.frameDuration > 0 {
		s.FPS = float64(time.Second) / float64(p.frameDuration)
	}
	if p.filled == 0 {
		return s
	}

	window := p.samples[:p.filled]
	ticks := make([]float64, len(window))
	var total time.Duration
	var phaseSum [NumPhases]time.Duration
	for i, smp := range window {
		total += smp.Tick
		ticks[i] = float64(smp.Tick)
		for ph, d := range smp.Phases {
			phaseSum[ph] += d
		}
	}
	slices.Sort(ticks)

	n := time.Duration(len(window))
	s.Samples = len(window)
	s.AvgTickDuration = total / n
	s.MinTickDuration = time.Duration(ticks[0])
	s.MaxTickDuration = time.Duration(ticks[len(ticks)-1])
	s.P90TickDuration = time.Duration(Percentile(ticks, 0.9))
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / n
		if s.AvgTickDuration > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTickDuration) * 100
		}
	}
	if s.AvgTickDuration > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTickDuration)
	}
	return s
}

// LogStats logs performance statistics, omitting phases under 0.1%.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"p90_tick_us", s.P90TickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("p90_tick_us", s.P90TickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for ph, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Timestep     int     `csv:"timestep"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	P90TickUS    int64   `csv:"p90_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	FPS          float64 `csv:"fps"`
	UpdatePct    float64 `csv:"update_pct"`
	GatherPct    float64 `csv:"gather_pct"`
	SelectionPct float64 `csv:"selection_pct"`
	SitesPct     float64 `csv:"sites_pct"`
	ReducePct    float64 `csv:"reduce_pct"`
	CommitPct    float64 `csv:"commit_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(timestep int) PerfStatsCSV {
	return PerfStatsCSV{
		Timestep:     timestep,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		P90TickUS:    s.P90TickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		FPS:          s.FPS,
		UpdatePct:    s.PhasePct[PhaseUpdate],
		GatherPct:    s.PhasePct[PhaseGather],
		SelectionPct: s.PhasePct[PhaseSelection],
		SitesPct:     s.PhasePct[PhaseSites],
		ReducePct:    s.PhasePct[PhaseReduce],
		CommitPct:    s.PhasePct[PhaseCommit],
	}
}
