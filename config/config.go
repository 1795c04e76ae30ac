// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned (wrapped) when a configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Execution modes.
const (
	ModeSequential  = "sequential"
	ModeShared      = "shared"
	ModeDistributed = "distributed"
)

// Site merge policies for distributed reconciliation.
const (
	MergeMin   = "min"
	MergeDelta = "delta"
)

// Config holds all simulation configuration parameters.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Hive        HiveConfig        `yaml:"hive"`
	Colony      ColonyConfig      `yaml:"colony"`
	Energy      EnergyConfig      `yaml:"energy"`
	Flowers     FlowersConfig     `yaml:"flowers"`
	Recruitment RecruitmentConfig `yaml:"recruitment"`
	Run         RunConfig         `yaml:"run"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the square world bounds.
type WorldConfig struct {
	Size float64 `yaml:"size"` // Side length; positions live in [0, size]
}

// HiveConfig holds the hive location.
type HiveConfig struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"` // Distance at or below which a bee is home
}

// ColonyConfig holds bee population and movement parameters.
type ColonyConfig struct {
	Bees               int     `yaml:"bees"`
	ScoutRatio         float64 `yaml:"scout_ratio"`         // Fraction of bees that start as scouts
	Speed              float64 `yaml:"speed"`               // Distance per tick
	VisionRange        float64 `yaml:"vision_range"`        // Flower detection radius for scouts
	ExploreProbability float64 `yaml:"explore_probability"` // Chance of a large random-walk step
	ExploreJump        float64 `yaml:"explore_jump"`        // Large step = speed * this
	SpawnSpread        float64 `yaml:"spawn_spread"`        // Initial offset from the hive per axis
}

// EnergyConfig holds energy bounds and costs.
type EnergyConfig struct {
	Max         float64 `yaml:"max"`
	Cost        float64 `yaml:"cost"`         // Debited per tick while moving
	LowFraction float64 `yaml:"low_fraction"` // Followers give up below max * this
}

// FlowersConfig holds resource site parameters.
type FlowersConfig struct {
	Count       int     `yaml:"count"`
	Capacity    int     `yaml:"capacity"`     // Concurrent feeders per flower
	NectarMax   float64 `yaml:"nectar_max"`   // Nectar total per flower
	RegenRate   float64 `yaml:"regen_rate"`   // Added per tick, clamped to nectar_max
	MaxHarvest  float64 `yaml:"max_harvest"`  // Nectar taken per visit
	EnergyYield float64 `yaml:"energy_yield"` // Energy gained per unit of nectar
}

// RecruitmentConfig holds waggle dance parameters.
type RecruitmentConfig struct {
	DanceDuration       int     `yaml:"dance_duration"`       // Ticks spent dancing
	DecisionProbability float64 `yaml:"decision_probability"` // Chance an idle bee watches dances each tick
	ArrivalRadius       float64 `yaml:"arrival_radius"`       // Follower reaches the advertised spot
	SiteSearchRadius    float64 `yaml:"site_search_radius"`   // Follower looks for a flower this close to the spot
	QualityWeight       float64 `yaml:"quality_weight"`
	DistanceScale       float64 `yaml:"distance_scale"`
	FollowerBonus       float64 `yaml:"follower_bonus"` // Attractiveness gain per follower
}

// RunConfig holds run length and seeds.
type RunConfig struct {
	MaxTimesteps int   `yaml:"max_timesteps"`
	Seed         int64 `yaml:"seed"`        // Bee placement and behavior streams
	FlowerSeed   int64 `yaml:"flower_seed"` // Flower placement
}

// ExecutionConfig selects the scheduling strategy.
type ExecutionConfig struct {
	Mode              string `yaml:"mode"`               // sequential, shared or distributed
	Workers           int    `yaml:"workers"`            // 0 = GOMAXPROCS
	ChunkSize         int    `yaml:"chunk_size"`         // Bees per dynamic work chunk
	ParallelThreshold int    `yaml:"parallel_threshold"` // Below this many bees shared mode runs inline
	SiteMerge         string `yaml:"site_merge"`         // min or delta
	CheckInvariants   bool   `yaml:"check_invariants"`   // Validate the world after every step and panic on violation
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsEvery  int `yaml:"stats_every"`  // Ticks between stats records
	ExportEvery int `yaml:"export_every"` // Ticks between position exports
	ExportUntil int `yaml:"export_until"` // Last tick (exclusive) with position exports
	PerfWindow  int `yaml:"perf_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Hive      r2.Vec  // Hive center
	Scouts    int     // Number of bees that start as scouts
	LowEnergy float64 // Energy.Max * Energy.LowFraction
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := validateSchema(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks semantic constraints and recomputes derived values.
// Call it again after mutating a loaded config.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.World.Size > 0, "world.size must be positive, got %v", c.World.Size)
	check(c.Hive.X >= 0 && c.Hive.X <= c.World.Size && c.Hive.Y >= 0 && c.Hive.Y <= c.World.Size,
		"hive (%v, %v) outside world", c.Hive.X, c.Hive.Y)
	check(c.Hive.Radius >= 0, "hive.radius must not be negative")
	check(c.Colony.Bees > 0, "colony.bees must be positive, got %d", c.Colony.Bees)
	check(inUnit(c.Colony.ScoutRatio), "colony.scout_ratio must be in [0,1], got %v", c.Colony.ScoutRatio)
	check(inUnit(c.Colony.ExploreProbability), "colony.explore_probability must be in [0,1]")
	check(c.Colony.Speed >= 0, "colony.speed must not be negative")
	check(c.Energy.Max > 0, "energy.max must be positive")
	check(c.Energy.Cost >= 0, "energy.cost must not be negative")
	check(inUnit(c.Energy.LowFraction), "energy.low_fraction must be in [0,1]")
	check(c.Flowers.Count > 0, "flowers.count must be positive, got %d", c.Flowers.Count)
	check(c.Flowers.Capacity >= 0, "flowers.capacity must not be negative, got %d", c.Flowers.Capacity)
	check(c.Flowers.NectarMax > 0, "flowers.nectar_max must be positive")
	check(c.Flowers.RegenRate >= 0, "flowers.regen_rate must not be negative")
	check(c.Flowers.MaxHarvest > 0, "flowers.max_harvest must be positive")
	check(c.Recruitment.DanceDuration > 0, "recruitment.dance_duration must be positive")
	check(inUnit(c.Recruitment.DecisionProbability), "recruitment.decision_probability must be in [0,1], got %v",
		c.Recruitment.DecisionProbability)
	check(c.Recruitment.DistanceScale > 0, "recruitment.distance_scale must be positive")
	check(c.Run.MaxTimesteps >= 0, "run.max_timesteps must not be negative")
	check(c.Execution.Workers >= 0, "execution.workers must not be negative")
	check(c.Execution.ChunkSize > 0, "execution.chunk_size must be positive")
	switch c.Execution.Mode {
	case ModeSequential, ModeShared, ModeDistributed:
	default:
		check(false, "unknown execution.mode %q", c.Execution.Mode)
	}
	switch c.Execution.SiteMerge {
	case MergeMin, MergeDelta:
	default:
		check(false, "unknown execution.site_merge %q", c.Execution.SiteMerge)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1 && !math.IsNaN(v)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Hive = r2.Vec{X: c.Hive.X, Y: c.Hive.Y}
	c.Derived.Scouts = int(float64(c.Colony.Bees) * c.Colony.ScoutRatio)
	c.Derived.LowEnergy = c.Energy.Max * c.Energy.LowFraction
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
