package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/store"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := testConfig(t)
	w := testWorld(t)
	w.Bees[2].State = components.Foraging
	w.Bees[2].Target = components.RefTo(3)
	w.Timestep = 1000
	w.TotalNectar = 42
	st := store.New(w)

	snapshot := NewSnapshot(cfg, st, &Bookmark{
		Type:        BookmarkRecruitmentSurge,
		Timestep:    1000,
		Description: "Test bookmark",
	})

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Seed != cfg.Run.Seed {
		t.Errorf("Seed = %d, want %d", loaded.Seed, cfg.Run.Seed)
	}
	if loaded.Timestep != 1000 || loaded.TotalNectar != 42 {
		t.Errorf("Timestep, TotalNectar = %d, %v, want 1000, 42", loaded.Timestep, loaded.TotalNectar)
	}
	if len(loaded.Bees) != len(w.Bees) || len(loaded.Flowers) != len(w.Flowers) {
		t.Fatalf("counts = %d bees, %d flowers, want %d, %d",
			len(loaded.Bees), len(loaded.Flowers), len(w.Bees), len(w.Flowers))
	}
	if b := loaded.Bees[2]; b.State != components.Foraging || b.Target != 3 {
		t.Errorf("bee 2 = %+v, want foraging at flower 3", b)
	}
	if b := loaded.Bees[0]; b.Target != -1 {
		t.Errorf("bee 0 target = %d, want -1", b.Target)
	}
	if loaded.Bookmark == nil {
		t.Error("Bookmark not loaded")
	} else if loaded.Bookmark.Type != BookmarkRecruitmentSurge {
		t.Errorf("Bookmark type = %s, want %s", loaded.Bookmark.Type, BookmarkRecruitmentSurge)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		snapshot *Snapshot
		want     string
	}{
		{
			"with bookmark",
			&Snapshot{Version: SnapshotVersion, Timestep: 5000, Bookmark: &Bookmark{Type: BookmarkFlowerDepletion}},
			"snapshot_5000_flower_depletion.json",
		},
		{
			"without bookmark",
			&Snapshot{Version: SnapshotVersion, Timestep: 3000},
			"snapshot_3000.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := SaveSnapshot(tt.snapshot, tmpDir)
			if err != nil {
				t.Fatalf("SaveSnapshot failed: %v", err)
			}
			if want := filepath.Join(tmpDir, tt.want); path != want {
				t.Errorf("path = %s, want %s", path, want)
			}
		})
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("LoadSnapshot accepted unknown version")
	}
}
