package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/hive/cluster"
	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/store"
	"github.com/pthm-cable/hive/world"
)

const testSteps = 60

// smallConfig is a dense colony where flowers run dry and recruitment
// happens within a few dozen steps.
func smallConfig(mode string, workers int) *config.Config {
	cfg := config.Default()
	cfg.World.Size = 200
	cfg.Hive.X, cfg.Hive.Y = 100, 100
	cfg.Colony.Bees = 300
	cfg.Flowers.Count = 80
	cfg.Recruitment.DanceDuration = 3
	cfg.Execution.Mode = mode
	cfg.Execution.Workers = workers
	cfg.Execution.ChunkSize = 16
	cfg.Execution.ParallelThreshold = 0
	cfg.Execution.CheckInvariants = true
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func runFor(t *testing.T, cfg *config.Config, steps int) *Simulation {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Run(context.Background(), steps, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return s
}

func sameBees(t *testing.T, name string, got, want *world.World) {
	t.Helper()
	for i := range want.Bees {
		g, w := got.Bees[i], want.Bees[i]
		if g.Pos != w.Pos || g.State != w.State || g.Energy != w.Energy || g.Target != w.Target {
			t.Fatalf("%s: bee %d = %+v, want %+v", name, i, g, w)
		}
	}
	for i := range want.Flowers {
		if g, w := got.Flowers[i].Nectar(), want.Flowers[i].Nectar(); g != w {
			t.Fatalf("%s: flower %d nectar = %v, want %v", name, i, g, w)
		}
	}
}

func TestSingleWorkerStrategiesAgree(t *testing.T) {
	ref := runFor(t, smallConfig(config.ModeSequential, 0), testSteps)
	if ref.TotalNectar() <= 0 {
		t.Fatalf("sequential TotalNectar = %v, want > 0", ref.TotalNectar())
	}

	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"shared", smallConfig(config.ModeShared, 1)},
		{"distributed", smallConfig(config.ModeDistributed, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := runFor(t, tt.cfg, testSteps)
			if s.TotalNectar() != ref.TotalNectar() {
				t.Errorf("TotalNectar = %v, want %v", s.TotalNectar(), ref.TotalNectar())
			}
			if s.Timestep() != testSteps {
				t.Errorf("Timestep = %d, want %d", s.Timestep(), testSteps)
			}
			sameBees(t, tt.name, s.World(), ref.World())
		})
	}
}

func TestSequentialIsReproducible(t *testing.T) {
	a := runFor(t, smallConfig(config.ModeSequential, 0), testSteps)
	b := runFor(t, smallConfig(config.ModeSequential, 0), testSteps)
	if a.TotalNectar() != b.TotalNectar() {
		t.Errorf("TotalNectar = %v then %v", a.TotalNectar(), b.TotalNectar())
	}
	sameBees(t, "rerun", b.World(), a.World())
}

func TestManyWorkersStayClose(t *testing.T) {
	ref := runFor(t, smallConfig(config.ModeSequential, 0), testSteps).TotalNectar()

	delta := smallConfig(config.ModeDistributed, 4)
	delta.Execution.SiteMerge = config.MergeDelta

	tests := []struct {
		name   string
		cfg    *config.Config
		lo, hi float64
	}{
		{"shared", smallConfig(config.ModeShared, 4), 0.5, 1.5},
		{"distributed_min", smallConfig(config.ModeDistributed, 4), 0.5, 2},
		{"distributed_delta", delta, 0.5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runFor(t, tt.cfg, testSteps).TotalNectar()
			if got <= 0 {
				t.Fatalf("TotalNectar = %v, want > 0", got)
			}
			if ratio := got / ref; ratio < tt.lo || ratio > tt.hi {
				t.Errorf("TotalNectar = %v, sequential %v, ratio %.2f outside [%v, %v]",
					got, ref, ratio, tt.lo, tt.hi)
			}
		})
	}
}

func TestSharedRespectsCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{"closed flowers", 0},
		{"two feeders", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig(config.ModeShared, 8)
			cfg.Flowers.Count = 4
			cfg.Flowers.Capacity = tt.capacity
			if err := cfg.Validate(); err != nil {
				t.Fatal(err)
			}
			s, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()

			err = s.Run(context.Background(), testSteps, func(st *store.Store) error {
				var bad error
				st.EachFlower(func(f store.FlowerView) {
					if bad == nil && (f.Feeding != 0 || f.Nectar < 0 || f.Nectar > f.Total) {
						bad = fmt.Errorf("step %d: flower %d feeding=%d nectar=%v", st.Timestep(), f.ID, f.Feeding, f.Nectar)
					}
				})
				return bad
			})
			if err != nil {
				t.Fatal(err)
			}
			if tt.capacity == 0 && s.TotalNectar() != 0 {
				t.Errorf("TotalNectar = %v with capacity 0, want 0", s.TotalNectar())
			}
			if tt.capacity > 0 && s.TotalNectar() <= 0 {
				t.Errorf("TotalNectar = %v, want > 0", s.TotalNectar())
			}
		})
	}
}

// plentifulConfig gives every flower far more nectar than a run can take,
// so ranks never race each other to empty one.
func plentifulConfig(mode string, workers int) *config.Config {
	cfg := smallConfig(mode, workers)
	cfg.Colony.Bees = 302
	cfg.Flowers.NectarMax = 1e6
	cfg.Flowers.MaxHarvest = 1
	cfg.Execution.SiteMerge = config.MergeDelta
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func TestUnevenPartitionsMatchSequential(t *testing.T) {
	ref := runFor(t, plentifulConfig(config.ModeSequential, 0), testSteps)
	if ref.TotalNectar() <= 0 {
		t.Fatalf("sequential TotalNectar = %v, want > 0", ref.TotalNectar())
	}

	for _, ranks := range []int{3, 4, 7} {
		t.Run(fmt.Sprintf("ranks_%d", ranks), func(t *testing.T) {
			if 302%ranks == 0 {
				t.Fatalf("%d ranks split 302 bees evenly", ranks)
			}
			s := runFor(t, plentifulConfig(config.ModeDistributed, ranks), testSteps)
			if s.TotalNectar() != ref.TotalNectar() {
				t.Errorf("TotalNectar = %v, want %v", s.TotalNectar(), ref.TotalNectar())
			}
			sameBees(t, fmt.Sprintf("%d ranks", ranks), s.World(), ref.World())
		})
	}
}

func TestMergeSitesPolicies(t *testing.T) {
	tests := []struct {
		merge string
		want  func(baseline float64) float64
	}{
		// Both ranks took 1 from flower 0; min keeps only one of the takes.
		{config.MergeMin, func(b float64) float64 { return b - 1 }},
		{config.MergeDelta, func(b float64) float64 { return b - 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.merge, func(t *testing.T) {
			cfg := smallConfig(config.ModeDistributed, 2)
			cfg.Flowers.RegenRate = 0
			cfg.Execution.SiteMerge = tt.merge
			if err := cfg.Validate(); err != nil {
				t.Fatal(err)
			}

			comms := cluster.NewLocalGroup(2)
			ranks := make([]*rank, len(comms))
			for i, c := range comms {
				r, err := newRank(cfg, c)
				if err != nil {
					t.Fatal(err)
				}
				ranks[i] = r
			}
			baseline := ranks[0].w.Flowers[0].Nectar()
			for _, r := range ranks {
				for i := range r.w.Flowers {
					r.nectar[i] = r.w.Flowers[i].Nectar()
				}
				r.w.Flowers[0].SetNectar(baseline - 1)
			}

			var g errgroup.Group
			for _, r := range ranks {
				g.Go(func() error { return r.mergeSites(context.Background()) })
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}

			want := tt.want(baseline)
			for i, r := range ranks {
				if got := r.w.Flowers[0].Nectar(); got != want {
					t.Errorf("rank %d: flower 0 nectar = %v, want %v", i, got, want)
				}
				if got := r.w.Flowers[1].Nectar(); got != baseline {
					t.Errorf("rank %d: untouched flower 1 nectar = %v, want %v", i, got, baseline)
				}
			}
		})
	}
}

func TestInlineBelowThreshold(t *testing.T) {
	cfg := smallConfig(config.ModeShared, 4)
	cfg.Execution.ParallelThreshold = cfg.Colony.Bees + 1
	s := runFor(t, cfg, 5)
	if s.strat.(*parallel).running {
		t.Error("workers started below parallel threshold")
	}
}

func TestDistributedOverWebsocket(t *testing.T) {
	const ranks = 2
	local := runFor(t, smallConfig(config.ModeDistributed, ranks), 20)

	hub := cluster.NewHub(ranks)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sims := make([]*Simulation, ranks)
	for r := range sims {
		comm, err := cluster.Dial(ctx, url, r, ranks)
		if err != nil {
			t.Fatalf("Dial rank %d: %v", r, err)
		}
		s, err := NewRank(smallConfig(config.ModeDistributed, ranks), comm)
		if err != nil {
			t.Fatalf("NewRank %d: %v", r, err)
		}
		defer s.Close()
		sims[r] = s
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sims {
		g.Go(func() error { return s.Run(gctx, 20, nil) })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for r, s := range sims {
		if s.TotalNectar() != local.TotalNectar() {
			t.Errorf("rank %d TotalNectar = %v, want %v", r, s.TotalNectar(), local.TotalNectar())
		}
		sameBees(t, "websocket", s.World(), local.World())
	}
}

func TestRunHook(t *testing.T) {
	s, err := New(smallConfig(config.ModeSequential, 0))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	stop := errors.New("stop")
	calls := 0
	err = s.Run(context.Background(), 10, func(st *store.Store) error {
		calls++
		if st.Timestep() != calls {
			t.Errorf("store Timestep = %d, want %d", st.Timestep(), calls)
		}
		if calls == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Run error = %v, want %v", err, stop)
	}
	if s.Timestep() != 3 {
		t.Errorf("Timestep = %d, want 3", s.Timestep())
	}
}

func TestRunCancelled(t *testing.T) {
	s, err := New(smallConfig(config.ModeDistributed, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, 5, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if s.Timestep() != 0 {
		t.Errorf("Timestep = %d, want 0", s.Timestep())
	}
}

func TestStoreTracksWorld(t *testing.T) {
	s := runFor(t, smallConfig(config.ModeShared, 2), 15)
	st := s.Store()
	if st.TotalNectar() != s.TotalNectar() {
		t.Errorf("store TotalNectar = %v, want %v", st.TotalNectar(), s.TotalNectar())
	}
	counts := st.StateCounts()
	want := s.World().CountStates()
	if counts != want {
		t.Errorf("StateCounts = %v, want %v", counts, want)
	}
}

func TestStepRejectsLeftoverDances(t *testing.T) {
	s, err := New(smallConfig(config.ModeSequential, 0))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	w := s.World()
	w.Dances = append(w.Dances, components.Dance{Owner: 0})
	if err := s.Step(context.Background()); !errors.Is(err, world.ErrInvariant) {
		t.Errorf("Step error = %v, want ErrInvariant", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := smallConfig(config.ModeSequential, 0)
	cfg.Execution.Mode = "gpu"
	if _, err := New(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New error = %v, want ErrInvalid", err)
	}
}

func TestNectarConservation(t *testing.T) {
	// Replicated modes may overcount contended harvests, so only the
	// single-world strategies are checked.
	for _, mode := range []string{config.ModeSequential, config.ModeShared} {
		t.Run(mode, func(t *testing.T) {
			cfg := smallConfig(mode, 3)
			cfg.Flowers.RegenRate = 0
			if err := cfg.Validate(); err != nil {
				t.Fatal(err)
			}
			s := runFor(t, cfg, testSteps)
			var left float64
			for i := range s.World().Flowers {
				left += s.World().Flowers[i].Nectar()
			}
			initial := float64(cfg.Flowers.Count) * cfg.Flowers.NectarMax
			if got := left + s.TotalNectar(); math.Abs(got-initial) > 1e-6 {
				t.Errorf("remaining + collected = %v, want %v", got, initial)
			}
		})
	}
}
