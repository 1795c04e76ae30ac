package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/hive/cluster"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/systems"
	"github.com/pthm-cable/hive/telemetry"
	"github.com/pthm-cable/hive/wire"
	"github.com/pthm-cable/hive/world"
)

// rank is one partition of a distributed run. It holds a full replica of
// the world and is the only writer of its own bee slice during the local
// update; everything else is reconciled through comm every step.
type rank struct {
	cfg     *config.Config
	comm    cluster.Comm
	w       *world.World
	env     *systems.Env
	streams *systems.Streams

	nectar []float64 // per-flower scratch for site merges
	buf    []byte
}

// newRank builds the replica for comm's rank. Every rank in the group must
// be created from an identical config.
func newRank(cfg *config.Config, comm cluster.Comm) (*rank, error) {
	if comm.Size() > cfg.Colony.Bees {
		return nil, fmt.Errorf("%w: %d ranks for %d bees", config.ErrInvalid, comm.Size(), cfg.Colony.Bees)
	}
	w, err := world.New(cfg)
	if err != nil {
		return nil, err
	}
	w.Slice = world.Partition(len(w.Bees), comm.Size(), comm.Rank())
	return &rank{
		cfg:     cfg,
		comm:    comm,
		w:       w,
		env:     systems.NewEnv(cfg, w, systems.GridFor(cfg, w)),
		streams: systems.NewStreams(cfg.Run.Seed),
		nectar:  make([]float64, len(w.Flowers)),
	}, nil
}

func (r *rank) step(ctx context.Context, perf *telemetry.PerfCollector) error {
	w := r.w
	t := w.Timestep
	s := w.Slice

	if r.cfg.Execution.SiteMerge == config.MergeDelta {
		for i := range w.Flowers {
			r.nectar[i] = w.Flowers[i].Nectar()
		}
	}

	perf.StartPhase(telemetry.PhaseUpdate)
	var harvested float64
	for i := s.Offset; i < s.End(); i++ {
		r.env.UpdateBee(i, r.streams.For(t, systems.PhaseUpdate, i), &harvested)
	}

	perf.StartPhase(telemetry.PhaseGather)
	if err := r.gatherBees(ctx); err != nil {
		return fmt.Errorf("step %d: gathering bees: %w", t, err)
	}
	if err := r.gatherDances(ctx); err != nil {
		return fmt.Errorf("step %d: gathering dances: %w", t, err)
	}

	perf.StartPhase(telemetry.PhaseSelection)
	for i := range w.Bees {
		r.env.WatchDances(i, r.streams.For(t, systems.PhaseSelect, i), s.Contains(i))
	}

	perf.StartPhase(telemetry.PhaseGather)
	if err := r.gatherBees(ctx); err != nil {
		return fmt.Errorf("step %d: gathering followers: %w", t, err)
	}

	perf.StartPhase(telemetry.PhaseSites)
	if err := r.mergeSites(ctx); err != nil {
		return fmt.Errorf("step %d: merging sites: %w", t, err)
	}

	perf.StartPhase(telemetry.PhaseReduce)
	total := []float64{harvested}
	if err := cluster.AllReduceSum(ctx, r.comm, total); err != nil {
		return fmt.Errorf("step %d: reducing nectar: %w", t, err)
	}
	finishStep(w, total[0])
	return nil
}

// gatherBees replaces every other rank's slice with what that rank sent.
func (r *rank) gatherBees(ctx context.Context) error {
	w := r.w
	r.buf = wire.AppendBees(r.buf[:0], w.Bees[w.Slice.Offset:w.Slice.End()])
	parts, err := r.comm.AllGather(ctx, r.buf)
	if err != nil {
		return err
	}
	for from, part := range parts {
		if from == r.comm.Rank() {
			continue
		}
		sl := world.Partition(len(w.Bees), len(parts), from)
		_, n, err := wire.Header(part)
		if err != nil {
			return fmt.Errorf("rank %d: %w", from, err)
		}
		if n != sl.Count {
			return fmt.Errorf("rank %d: %w: sent %d bees, owns %d", from, wire.ErrCount, n, sl.Count)
		}
		// Decoding into a zero-length window overwrites the slice in place.
		if _, err := wire.DecodeBees(part, w.Bees[sl.Offset:sl.Offset]); err != nil {
			return fmt.Errorf("rank %d: %w", from, err)
		}
	}
	return nil
}

// gatherDances merges the dances registered on each rank, in rank order.
// Counts go first so a step without dances skips the payload exchange.
func (r *rank) gatherDances(ctx context.Context) error {
	w := r.w
	counts, err := r.comm.AllGather(ctx, binary.LittleEndian.AppendUint32(nil, uint32(len(w.Dances))))
	if err != nil {
		return err
	}
	total := 0
	for from, c := range counts {
		if len(c) != 4 {
			return fmt.Errorf("rank %d: %w: dance count of %d bytes", from, wire.ErrShort, len(c))
		}
		total += int(binary.LittleEndian.Uint32(c))
	}
	if total == 0 {
		return nil
	}

	parts, err := r.comm.AllGather(ctx, wire.AppendDances(nil, w.Dances))
	if err != nil {
		return err
	}
	w.Dances = w.Dances[:0]
	for from, part := range parts {
		want := int(binary.LittleEndian.Uint32(counts[from]))
		before := len(w.Dances)
		if w.Dances, err = wire.DecodeDances(part, w.Dances); err != nil {
			return fmt.Errorf("rank %d: %w", from, err)
		}
		if got := len(w.Dances) - before; got != want {
			return fmt.Errorf("rank %d: %w: sent %d dances, announced %d", from, wire.ErrCount, got, want)
		}
	}
	return nil
}

// mergeSites reconciles flower nectar across replicas, regenerates on
// rank 0 and broadcasts the canonical flowers.
func (r *rank) mergeSites(ctx context.Context) error {
	w := r.w
	switch r.cfg.Execution.SiteMerge {
	case config.MergeDelta:
		// r.nectar holds the pre-update baseline, identical on every rank.
		depleted := make([]float64, len(w.Flowers))
		for i := range w.Flowers {
			depleted[i] = r.nectar[i] - w.Flowers[i].Nectar()
		}
		if err := cluster.AllReduceSum(ctx, r.comm, depleted); err != nil {
			return err
		}
		for i := range w.Flowers {
			w.Flowers[i].SetNectar(max(r.nectar[i]-depleted[i], 0))
		}
	default:
		for i := range w.Flowers {
			r.nectar[i] = w.Flowers[i].Nectar()
		}
		if err := cluster.AllReduceMin(ctx, r.comm, r.nectar); err != nil {
			return err
		}
		for i := range w.Flowers {
			w.Flowers[i].SetNectar(r.nectar[i])
		}
	}

	var payload []byte
	if r.comm.Rank() == 0 {
		systems.Regenerate(w.Flowers, r.cfg.Flowers.RegenRate)
		r.buf = wire.AppendFlowers(r.buf[:0], w.Flowers)
		payload = r.buf
	}
	canonical, err := cluster.Bcast(ctx, r.comm, 0, payload)
	if err != nil {
		return err
	}
	if r.comm.Rank() == 0 {
		return nil
	}
	return wire.DecodeFlowers(canonical, w.Flowers)
}

func (r *rank) world() *world.World { return r.w }

func (r *rank) close() error { return r.comm.Close() }

// distributed runs every rank of an in-process group concurrently.
// Rank 0's replica is the canonical world.
type distributed struct {
	ranks []*rank
}

func newDistributed(cfg *config.Config) (*distributed, error) {
	size := cfg.Execution.Workers
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	size = min(size, cfg.Colony.Bees)

	comms := cluster.NewLocalGroup(size)
	d := &distributed{ranks: make([]*rank, size)}
	for i, c := range comms {
		r, err := newRank(cfg, c)
		if err != nil {
			for _, c := range comms {
				c.Close()
			}
			return nil, err
		}
		d.ranks[i] = r
	}
	return d, nil
}

func (d *distributed) step(ctx context.Context, perf *telemetry.PerfCollector) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range d.ranks {
		var p *telemetry.PerfCollector
		if i == 0 {
			p = perf
		}
		g.Go(func() error { return r.step(ctx, p) })
	}
	return g.Wait()
}

func (d *distributed) world() *world.World { return d.ranks[0].w }

func (d *distributed) close() error {
	var g errgroup.Group
	for _, r := range d.ranks {
		g.Go(r.close)
	}
	return g.Wait()
}
