package telemetry

import (
	"fmt"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/store"
)

// StepStats summarizes the colony after one completed step.
type StepStats struct {
	Timestep    int     `csv:"timestep"`
	TotalNectar float64 `csv:"total_nectar"`

	// Bees per state
	Idle      int `csv:"idle"`
	Scout     int `csv:"scout"`
	Returning int `csv:"returning"`
	Dancing   int `csv:"dancing"`
	Follower  int `csv:"follower"`
	Foraging  int `csv:"foraging"`

	// Energy distribution
	EnergyMean float64 `csv:"energy_mean"`
	EnergyStd  float64 `csv:"energy_std"`
	EnergyP10  float64 `csv:"energy_p10"`
	EnergyP50  float64 `csv:"energy_p50"`
	EnergyP90  float64 `csv:"energy_p90"`

	// Flowers
	FlowerNectarMean float64 `csv:"flower_nectar_mean"`
	DepletedFlowers  int     `csv:"depleted_flowers"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeEnergyStats calculates mean, standard deviation and percentiles
// from energy values. values is sorted in place.
func ComputeEnergyStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(values)
	mean, std = stat.PopMeanStdDev(values, nil)
	return mean, std, Percentile(values, 0.10), Percentile(values, 0.50), Percentile(values, 0.90)
}

// StatsCollector turns store snapshots into StepStats, reusing its buffers.
type StatsCollector struct {
	energy []float64
	nectar []float64
}

// NewStatsCollector returns an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// Collect summarizes the last committed step in st.
func (c *StatsCollector) Collect(st *store.Store) StepStats {
	counts := st.StateCounts()
	s := StepStats{
		Timestep:    st.Timestep(),
		TotalNectar: st.TotalNectar(),
		Idle:        counts[components.Idle],
		Scout:       counts[components.Scout],
		Returning:   counts[components.Returning],
		Dancing:     counts[components.Dancing],
		Follower:    counts[components.Follower],
		Foraging:    counts[components.Foraging],
	}

	c.energy = c.energy[:0]
	st.EachBee(func(b store.BeeView) {
		c.energy = append(c.energy, b.Energy)
	})
	s.EnergyMean, s.EnergyStd, s.EnergyP10, s.EnergyP50, s.EnergyP90 = ComputeEnergyStats(c.energy)

	c.nectar = c.nectar[:0]
	st.EachFlower(func(f store.FlowerView) {
		c.nectar = append(c.nectar, f.Nectar)
		if f.Nectar <= 0 {
			s.DepletedFlowers++
		}
	})
	if len(c.nectar) > 0 {
		s.FlowerNectarMean = stat.Mean(c.nectar, nil)
	}
	return s
}

// Line renders the stats as a one-line progress report.
func (s StepStats) Line() string {
	return fmt.Sprintf("Step %4d | Nectar: %7.2f | Scout: %3d | Idle: %3d | Dance: %3d | Follow: %3d | Forage: %3d | Return: %3d",
		s.Timestep, s.TotalNectar, s.Scout, s.Idle, s.Dancing, s.Follower, s.Foraging, s.Returning)
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("timestep", s.Timestep),
		slog.Float64("total_nectar", s.TotalNectar),
		slog.Int("idle", s.Idle),
		slog.Int("scout", s.Scout),
		slog.Int("returning", s.Returning),
		slog.Int("dancing", s.Dancing),
		slog.Int("follower", s.Follower),
		slog.Int("foraging", s.Foraging),
		slog.Float64("energy_mean", s.EnergyMean),
		slog.Float64("energy_std", s.EnergyStd),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Float64("energy_p90", s.EnergyP90),
		slog.Float64("flower_nectar_mean", s.FlowerNectarMean),
		slog.Int("depleted_flowers", s.DepletedFlowers),
	)
}

// LogStats logs the headline numbers using slog.
func (s StepStats) LogStats() {
	slog.Info("stats",
		"timestep", s.Timestep,
		"nectar", s.TotalNectar,
		"scout", s.Scout,
		"idle", s.Idle,
		"dance", s.Dancing,
		"follow", s.Follower,
		"forage", s.Foraging,
		"return", s.Returning,
		"energy_p50", s.EnergyP50,
	)
}
