package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/hive/store"
)

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v, want nil, nil", om, err)
	}
	if err := om.WriteStats(StepStats{}); err != nil {
		t.Errorf("WriteStats on nil manager: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("Close on nil manager: %v", err)
	}
}

func TestOutputManager_StatsCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := om.WriteStats(StepStats{Timestep: i * 100, Scout: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{AvgTickDuration: time.Millisecond}, 100); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var rows []StepStats
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("read %d stats rows, want 3", len(rows))
	}
	if rows[2].Timestep != 300 || rows[2].Scout != 3 {
		t.Errorf("last row = %+v, want timestep 300, scout 3", rows[2])
	}

	perf, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(perf), "\n"); lines != 2 {
		t.Errorf("perf.csv has %d lines, want header and one row", lines)
	}
}

func TestPositionExporter(t *testing.T) {
	for _, name := range []string{"positions.csv", "positions.csv.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			e, err := NewPositionExporter(path, 3, 10)
			if err != nil {
				t.Fatal(err)
			}
			w := testWorld(t)
			st := store.New(w)
			for step := 0; step < 12; step++ {
				if err := e.Export(step, st); err != nil {
					t.Fatal(err)
				}
			}
			if err := e.Close(); err != nil {
				t.Fatal(err)
			}

			rows, err := ReadPositions(path)
			if err != nil {
				t.Fatal(err)
			}
			// Steps 3, 6 and 9 are exported.
			per := len(w.Bees) + len(w.Flowers)
			if len(rows) != 3*per {
				t.Fatalf("read %d rows, want %d", len(rows), 3*per)
			}
			if rows[0].Timestep != 3 || rows[0].Type != "flower" {
				t.Errorf("first row = %+v, want flower at step 3", rows[0])
			}
			if last := rows[len(rows)-1]; last.Timestep != 9 || last.Type != "bee" || last.Nectar != 0 {
				t.Errorf("last row = %+v, want bee at step 9", last)
			}
		})
	}
}

func TestPositionExporter_Due(t *testing.T) {
	e := &PositionExporter{every: 3, until: 500}
	tests := []struct {
		t    int
		want bool
	}{
		{0, false}, {3, true}, {4, false}, {498, true}, {500, false}, {501, false},
	}
	for _, tt := range tests {
		if got := e.Due(tt.t); got != tt.want {
			t.Errorf("Due(%d) = %v, want %v", tt.t, got, tt.want)
		}
	}
	var nilExporter *PositionExporter
	if nilExporter.Due(3) {
		t.Error("nil exporter reported due")
	}
}
