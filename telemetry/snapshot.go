package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the observable colony state at one step for replay.
type Snapshot struct {
	Version    int   `json:"version"`
	Seed       int64 `json:"seed"`
	FlowerSeed int64 `json:"flower_seed"`

	WorldSize  float64 `json:"world_size"`
	HiveX      float64 `json:"hive_x"`
	HiveY      float64 `json:"hive_y"`
	HiveRadius float64 `json:"hive_radius"`

	Timestep    int     `json:"timestep"`
	TotalNectar float64 `json:"total_nectar"`

	Bees    []BeeState    `json:"bees"`
	Flowers []FlowerState `json:"flowers"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// BeeState holds one bee's observable state.
type BeeState struct {
	ID     int32               `json:"id"`
	X      float64             `json:"x"`
	Y      float64             `json:"y"`
	VelX   float64             `json:"vel_x"`
	VelY   float64             `json:"vel_y"`
	State  components.BeeState `json:"state"`
	Energy float64             `json:"energy"`
	Target int32               `json:"target"` // -1 when absent
}

// FlowerState holds one flower's observable state.
type FlowerState struct {
	ID     int32   `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Nectar float64 `json:"nectar"`
	Total  float64 `json:"total"`
}

// NewSnapshot captures st. bookmark may be nil.
func NewSnapshot(cfg *config.Config, st *store.Store, bookmark *Bookmark) *Snapshot {
	s := &Snapshot{
		Version:     SnapshotVersion,
		Seed:        cfg.Run.Seed,
		FlowerSeed:  cfg.Run.FlowerSeed,
		WorldSize:   cfg.World.Size,
		HiveX:       cfg.Hive.X,
		HiveY:       cfg.Hive.Y,
		HiveRadius:  cfg.Hive.Radius,
		Timestep:    st.Timestep(),
		TotalNectar: st.TotalNectar(),
		Bees:        make([]BeeState, 0, st.NumBees()),
		Flowers:     make([]FlowerState, 0, st.NumFlowers()),
		Bookmark:    bookmark,
	}
	st.EachBee(func(b store.BeeView) {
		target := int32(-1)
		if i, ok := b.Target.Get(); ok {
			target = int32(i)
		}
		s.Bees = append(s.Bees, BeeState{
			ID: b.ID, X: b.Pos.X, Y: b.Pos.Y, VelX: b.Vel.X, VelY: b.Vel.Y,
			State: b.State, Energy: b.Energy, Target: target,
		})
	})
	st.EachFlower(func(f store.FlowerView) {
		s.Flowers = append(s.Flowers, FlowerState{
			ID: f.ID, X: f.Pos.X, Y: f.Pos.Y, Nectar: f.Nectar, Total: f.Total,
		})
	})
	return s
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Build filename
	name := fmt.Sprintf("snapshot_%d", snapshot.Timestep)
	if snapshot.Bookmark != nil {
		// Sanitize bookmark type for filename
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Timestep, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
