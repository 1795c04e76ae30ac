package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/hive/config"
)

const smallConfigYAML = `
world:
  size: 200
hive:
  x: 100
  y: 100
colony:
  bees: 120
flowers:
  count: 30
telemetry:
  stats_every: 5
  export_every: 3
  export_until: 20
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(smallConfigYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("version output %q does not contain %q", out, version)
	}
}

func TestSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "coordinator", "worker", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Use != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd.Use, err)
		}
	}
}

func TestRunWritesOutputs(t *testing.T) {
	for _, mode := range []string{"sequential", "shared", "distributed"} {
		t.Run(mode, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out")
			db := filepath.Join(dir, "runs.db")
			_, err := execute(t, "run",
				"--config", writeConfig(t, dir),
				"--mode", mode,
				"--workers", "2",
				"--steps", "20",
				"--check-invariants",
				"--output-dir", out,
				"--positions", "positions.csv.zst",
				"--db", db,
			)
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			for _, name := range []string{
				"stats.csv", "perf.csv", "bookmarks.csv", "config.yaml",
				"positions.csv.zst", "results_" + mode + ".txt",
			} {
				if _, err := os.Stat(filepath.Join(out, name)); err != nil {
					t.Errorf("missing %s: %v", name, err)
				}
			}
			if _, err := os.Stat(db); err != nil {
				t.Errorf("missing database: %v", err)
			}

			results, err := os.ReadFile(filepath.Join(out, "results_"+mode+".txt"))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(results), "# Timesteps: 20\n") {
				t.Errorf("results do not report 20 timesteps:\n%s", results)
			}
		})
	}
}

func TestRunCheckInvariantsFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"default on", nil, true},
		{"disabled", []string{"--check-invariants=false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out")
			args := append([]string{"run", "--config", writeConfig(t, dir), "--steps", "2", "--output-dir", out}, tt.args...)
			if _, err := execute(t, args...); err != nil {
				t.Fatalf("run: %v", err)
			}
			cfg, err := config.Load(filepath.Join(out, "config.yaml"))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Execution.CheckInvariants != tt.want {
				t.Errorf("CheckInvariants = %v, want %v", cfg.Execution.CheckInvariants, tt.want)
			}
		})
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"run", "--mode", "gpu", "--steps", "1"}},
		{"unknown merge", []string{"run", "--site-merge", "max", "--steps", "1"}},
		{"missing config", []string{"run", "--config", "/nonexistent/hive.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCoordinatorRejectsRanks(t *testing.T) {
	if _, err := execute(t, "coordinator", "--ranks", "0"); err == nil {
		t.Error("expected error for zero ranks")
	}
}
