package sim

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"sync"

	"github.com/pthm-cable/hive/components"
	"github.com/pthm-cable/hive/config"
	"github.com/pthm-cable/hive/systems"
	"github.com/pthm-cable/hive/telemetry"
	"github.com/pthm-cable/hive/world"
)

// workerScratch holds per-worker state reused across chunks.
type workerScratch struct {
	streams   *systems.Streams
	harvested float64
}

// workChunk is a range of bees for one worker in one phase.
type workChunk struct {
	start, end int
	step       int
	phase      systems.Phase
}

// parallel runs the update and selection phases on a pool of persistent
// workers sharing one world. Flowers are guarded per flower, dances by a
// single mutex, and follower counters are atomic.
type parallel struct {
	cfg *config.Config
	w   *world.World
	env *systems.Env

	scratches  []workerScratch
	numWorkers int
	chunkSize  int
	threshold  int

	// Worker pool channels
	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newParallel(cfg *config.Config, w *world.World) *parallel {
	numWorkers := cfg.Execution.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &parallel{
		cfg: cfg,
		w:   w,
		env: &systems.Env{
			Cfg:    cfg,
			World:  w,
			Sites:  systems.NewLockedSites(cfg, w.Flowers),
			Dances: systems.NewSyncDanceLog(w),
			Grid:   systems.GridFor(cfg, w),
		},
		scratches:  make([]workerScratch, numWorkers),
		numWorkers: numWorkers,
		chunkSize:  cfg.Execution.ChunkSize,
		threshold:  cfg.Execution.ParallelThreshold,
	}
	for i := range p.scratches {
		p.scratches[i].streams = systems.NewStreams(cfg.Run.Seed)
	}
	return p
}

// startWorkers launches persistent worker goroutines.
func (p *parallel) startWorkers() {
	if p.running {
		return
	}

	maxChunks := (len(p.w.Bees) + p.chunkSize - 1) / p.chunkSize
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, maxChunks)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallel) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker processes chunks until stopped.
func (p *parallel) worker(workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.computeChunk(chunk, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

func (p *parallel) computeChunk(c workChunk, scratch *workerScratch) {
	switch c.phase {
	case systems.PhaseUpdate:
		for i := c.start; i < c.end; i++ {
			p.env.UpdateBee(i, scratch.streams.For(c.step, c.phase, i), &scratch.harvested)
		}
	case systems.PhaseSelect:
		for i := c.start; i < c.end; i++ {
			p.env.WatchDances(i, scratch.streams.For(c.step, c.phase, i), true)
		}
	}
}

// run covers every bee with one phase, inline for small colonies.
func (p *parallel) run(step int, phase systems.Phase) {
	n := len(p.w.Bees)
	if n < p.threshold {
		p.computeChunk(workChunk{start: 0, end: n, step: step, phase: phase}, &p.scratches[0])
		return
	}

	if !p.running {
		p.startWorkers()
	}

	// Dynamic chunks: idle workers pull the next range.
	chunksDispatched := 0
	for start := 0; start < n; start += p.chunkSize {
		end := min(start+p.chunkSize, n)
		p.workChan <- workChunk{start: start, end: end, step: step, phase: phase}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}

func (p *parallel) step(_ context.Context, perf *telemetry.PerfCollector) error {
	w := p.w
	t := w.Timestep

	perf.StartPhase(telemetry.PhaseUpdate)
	p.run(t, systems.PhaseUpdate)

	// Registration order depends on scheduling; selection walks dances in
	// owner order so a given set of dances always forms the same wheel.
	slices.SortFunc(w.Dances, func(a, b components.Dance) int { return cmp.Compare(a.Owner, b.Owner) })

	perf.StartPhase(telemetry.PhaseSelection)
	p.run(t, systems.PhaseSelect)

	perf.StartPhase(telemetry.PhaseSites)
	systems.Regenerate(w.Flowers, p.cfg.Flowers.RegenRate)

	perf.StartPhase(telemetry.PhaseReduce)
	var harvested float64
	for i := range p.scratches {
		harvested += p.scratches[i].harvested
		p.scratches[i].harvested = 0
	}
	finishStep(w, harvested)
	return nil
}

func (p *parallel) world() *world.World { return p.w }

func (p *parallel) close() error {
	p.stopWorkers()
	return nil
}
