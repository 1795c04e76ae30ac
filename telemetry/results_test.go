package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/hive/store"
)

func TestWriteResults(t *testing.T) {
	w := testWorld(t)
	w.TotalNectar = 12.345
	w.Timestep = 10
	w.Flowers[1].SetNectar(2.5)
	st := store.New(w)

	path := filepath.Join(t.TempDir(), "results.txt")
	if err := WriteResults(path, "Bee Foraging Simulation Results", st); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"# Bee Foraging Simulation Results\n",
		"# Total nectar collected: 12.35\n",
		"# Timesteps: 10\n",
		"nectar=2.50/5.00\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("results missing %q", want)
		}
	}
	if n := strings.Count(text, "Flower "); n != len(w.Flowers) {
		t.Errorf("results list %d flowers, want %d", n, len(w.Flowers))
	}
}

func TestResultsDB(t *testing.T) {
	db, err := OpenResultsDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := testConfig(t)
	w := testWorld(t)
	st := store.New(w)

	var ids []int64
	for _, total := range []float64{10, 30, 20} {
		w.TotalNectar = total
		st.Commit(w)
		id, err := db.SaveRun(NewRunSummary(cfg, st, time.Second), st)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("Runs() returned %d runs, want 3", len(runs))
	}

	best, err := db.BestRun()
	if err != nil {
		t.Fatal(err)
	}
	if best.ID != ids[1] || best.TotalNectar != 30 {
		t.Errorf("BestRun = run %d with %v, want run %d with 30", best.ID, best.TotalNectar, ids[1])
	}

	flowers, err := db.Flowers(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(flowers) != len(w.Flowers) {
		t.Errorf("Flowers(%d) returned %d, want %d", ids[0], len(flowers), len(w.Flowers))
	}
}
