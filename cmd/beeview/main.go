// Bee colony viewer - steps a simulation live or shows a saved snapshot.
//
// Usage:
//
//	go run ./cmd/beeview [-config path] [-mode shared]
//	go run ./cmd/beeview -snapshot out/snapshots/snapshot_400.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/hive/camera"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/sim"
	"github.com/pthm-cable/hive/telemetry"
)

const (
	windowWidth  = 1100
	windowHeight = 800
	panelWidth   = 260
)

func main() {
	configPath := flag.String("config", "", "Config YAML file (empty = use defaults)")
	mode := flag.String("mode", "", "Execution mode override")
	bees := flag.Int("bees", 0, "Colony size override (0 = keep config)")
	snapshotPath := flag.String("snapshot", "", "Show a saved snapshot instead of running")
	flag.Parse()

	v := &viewer{stepsPerFrame: 1}
	if *snapshotPath != "" {
		snap, err := telemetry.LoadSnapshot(*snapshotPath)
		if err != nil {
			log.Fatalf("failed to load snapshot: %v", err)
		}
		v.snap = snap
		v.worldSize = snap.WorldSize
		v.scene = sceneFromSnapshot(snap)
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if *mode != "" {
			cfg.Execution.Mode = *mode
		}
		if *bees > 0 {
			cfg.Colony.Bees = *bees
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
		s, err := sim.New(cfg)
		if err != nil {
			log.Fatalf("failed to create simulation: %v", err)
		}
		defer s.Close()
		v.sim = s
		v.stats = telemetry.NewStatsCollector()
		v.worldSize = cfg.World.Size
		v.refresh()
	}

	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(windowWidth, windowHeight, "Bee Colony")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	v.cam = camera.New(windowWidth-panelWidth, windowHeight, float32(v.worldSize))

	ctx := context.Background()
	for !rl.WindowShouldClose() {
		v.handleInput()
		if err := v.update(ctx); err != nil {
			slog.Error("step failed", "error", err)
			v.paused = true
		}
		v.draw()
	}
}

// viewer holds the window state for either a live run or a snapshot.
type viewer struct {
	sim   *sim.Simulation
	snap  *telemetry.Snapshot
	stats *telemetry.StatsCollector

	cam       *camera.Camera
	worldSize float64
	scene     scene
	last      telemetry.StepStats

	paused        bool
	stepsPerFrame int
}

func (v *viewer) update(ctx context.Context) error {
	if v.sim == nil || v.paused {
		return nil
	}
	cfg := v.sim.Config()
	for range v.stepsPerFrame {
		if cfg.Run.MaxTimesteps > 0 && v.sim.Timestep() >= cfg.Run.MaxTimesteps {
			v.paused = true
			break
		}
		if err := v.sim.Step(ctx); err != nil {
			return err
		}
	}
	v.sim.Perf().RecordFrame()
	v.refresh()
	return nil
}

// refresh rebuilds the drawable scene from the published store.
func (v *viewer) refresh() {
	st := v.sim.Store()
	v.scene = sceneFromStore(v.sim.Config(), st)
	v.last = v.stats.Collect(st)
}

func (v *viewer) title() string {
	if v.snap != nil {
		t := fmt.Sprintf("Snapshot t=%d (seed %d)", v.snap.Timestep, v.snap.Seed)
		if v.snap.Bookmark != nil {
			t += " - " + v.snap.Bookmark.Description
		}
		return t
	}
	return fmt.Sprintf("%s run, seed %d", v.sim.Config().Execution.Mode, v.sim.Config().Run.Seed)
}
