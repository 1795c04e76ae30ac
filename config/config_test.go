package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Colony.Bees != 20000 {
		t.Errorf("Colony.Bees = %d, want 20000", cfg.Colony.Bees)
	}
	if cfg.Flowers.Count != 2000 {
		t.Errorf("Flowers.Count = %d, want 2000", cfg.Flowers.Count)
	}
	if cfg.Derived.Scouts != 4000 {
		t.Errorf("Derived.Scouts = %d, want 4000", cfg.Derived.Scouts)
	}
	if cfg.Derived.LowEnergy != 20 {
		t.Errorf("Derived.LowEnergy = %v, want 20", cfg.Derived.LowEnergy)
	}
	if cfg.Derived.Hive.X != 500 || cfg.Derived.Hive.Y != 500 {
		t.Errorf("Derived.Hive = %v, want (500, 500)", cfg.Derived.Hive)
	}
	if cfg.Execution.Mode != ModeSequential {
		t.Errorf("Execution.Mode = %q, want %q", cfg.Execution.Mode, ModeSequential)
	}
	if !cfg.Execution.CheckInvariants {
		t.Error("Execution.CheckInvariants = false, want true by default")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := writeFile(t, "colony:\n  bees: 50\nflowers:\n  count: 3\nexecution:\n  mode: shared\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Colony.Bees != 50 {
		t.Errorf("Colony.Bees = %d, want 50", cfg.Colony.Bees)
	}
	if cfg.Flowers.Count != 3 {
		t.Errorf("Flowers.Count = %d, want 3", cfg.Flowers.Count)
	}
	// Untouched keys keep their defaults
	if cfg.Colony.Speed != 5 {
		t.Errorf("Colony.Speed = %v, want 5", cfg.Colony.Speed)
	}
	if cfg.Derived.Scouts != 10 {
		t.Errorf("Derived.Scouts = %d, want 10", cfg.Derived.Scouts)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colony:\n  wings: 4\n"},
		{"negative capacity", "flowers:\n  capacity: -1\n"},
		{"probability above one", "recruitment:\n  decision_probability: 1.5\n"},
		{"unknown mode", "execution:\n  mode: gpu\n"},
		{"zero bees", "colony:\n  bees: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestValidateAfterMutation(t *testing.T) {
	cfg := Default()
	cfg.Colony.Bees = 10
	cfg.Colony.ScoutRatio = 0.5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Derived.Scouts != 5 {
		t.Errorf("Derived.Scouts = %d, want 5", cfg.Derived.Scouts)
	}

	cfg.Execution.SiteMerge = "max"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate() = %v, want ErrInvalid", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Recruitment.DecisionProbability = 0.45
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if got.Recruitment.DecisionProbability != 0.45 {
		t.Errorf("DecisionProbability = %v, want 0.45", got.Recruitment.DecisionProbability)
	}
}
