package world

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"

	"voxelforge.ai/internal/sim/tasks"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

type PipelineDeps struct {
	Source   Source
	Models   *mesh.ModelCache
	Sink     UploadSink
	Saver    ChunkSaver
	Executor *tasks.Executor
	Logger   *log.Logger
	TickLog  TickLogger
	Audit    AuditLogger
	// Restored holds chunks loaded from a snapshot. They stay part of
	// every exported snapshot until they become resident again.
	Restored *PackedSource
}

// Pipeline moves chunks from generation to uploaded meshes. Step runs the
// five stages in order and must only be called from one goroutine.
type Pipeline struct {
	cfg    Config
	world  *BlockWorld
	source Source
	models *mesh.ModelCache
	sink   UploadSink
	saver  ChunkSaver
	exec   *tasks.Executor
	logger *log.Logger
	tlog   TickLogger
	audit  AuditLogger
	loader *Loader

	// parked keeps edited chunks despawned this run; stage 1 serves them
	// before the source.
	parked   *PackedSource
	restored *PackedSource
	unsaved  map[store.ChunkPos]store.PackedChunk
	exportMu sync.Mutex

	tick    uatomic.Uint64
	stats   Stats
	metrics uatomic.Value

	stop     chan struct{}
	stopOnce sync.Once

	entry TickLogEntry
}

func NewPipeline(cfg Config, w *BlockWorld, deps PipelineDeps) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:    cfg,
		world:  w,
		source: deps.Source,
		models: deps.Models,
		sink:   deps.Sink,
		saver:  deps.Saver,
		exec:   deps.Executor,
		logger: deps.Logger,
		tlog:   deps.TickLog,
		audit:  deps.Audit,
		stop:   make(chan struct{}),

		parked:   NewPackedSource(),
		restored: deps.Restored,
		unsaved:  map[store.ChunkPos]store.PackedChunk{},
	}
	if p.sink == nil {
		p.sink = &nopSink{}
	}
	if p.exec == nil {
		p.exec = tasks.NewExecutor(0)
	}
	if p.models == nil {
		p.models = mesh.NewModelCache(nil)
	}
	w.OnBlockChanged(p.onBlockChanged)
	if p.audit != nil {
		w.OnBlockChanged(p.auditChange)
	}
	return p
}

func (p *Pipeline) World() *BlockWorld { return p.world }
func (p *Pipeline) Tick() uint64       { return p.tick.Load() }
func (p *Pipeline) Stats() *Stats      { return &p.stats }

// ResumeAt continues tick numbering from a previous run. Call it before the
// first Step.
func (p *Pipeline) ResumeAt(tick uint64) { p.tick.Store(tick) }

// Unsaved is the number of despawned edited chunks whose save is still
// waiting for room in the saver's queue.
func (p *Pipeline) Unsaved() int { return len(p.unsaved) }

// AttachLoader makes every Step run l before the pipeline stages.
func (p *Pipeline) AttachLoader(l *Loader) { p.loader = l }

func (p *Pipeline) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

func (p *Pipeline) fail(err error) {
	p.stats.Errors.Inc()
	p.entry.Errors = append(p.entry.Errors, err.Error())
	p.logf("[pipeline] %v", err)
}

// Step runs one tick of all five stages and returns the unused upload budget.
func (p *Pipeline) Step() int64 {
	start := time.Now()
	p.entry = TickLogEntry{Tick: p.tick.Load()}

	if p.loader != nil {
		p.loader.Tick()
	}
	p.intakeGeneration()
	p.intakeDespawn()
	p.drainGeneration()
	p.installAndRequestMeshes()
	budget := p.drainAndUpload()

	p.entry.BudgetLeft = budget
	if p.tlog != nil && !p.entry.empty() {
		if err := p.tlog.WriteTick(p.entry); err != nil {
			p.logf("[pipeline] tick log: %v", err)
		}
	}
	p.stats.Ticks.Inc()
	p.tick.Inc()
	p.publishMetrics(budget, float64(time.Since(start).Microseconds())/1000)
	return budget
}

// Stage 1.
func (p *Pipeline) intakeGeneration() {
	for _, pos := range p.world.queue.takeGenerate() {
		c, err := p.world.chunks.Add(pos)
		if err != nil {
			p.fail(fmt.Errorf("generate: %w", err))
			continue
		}
		src, parked := p.source, p.parked
		p.world.queue.generating[pos] = genJob{
			epoch: c.Epoch(),
			task: tasks.Spawn(p.exec, func() (sourced, error) {
				if d, ok, err := parked.LoadChunk(pos); err != nil || ok {
					return sourced{data: d, stored: ok}, err
				}
				return restore(src, pos)
			}),
		}
		p.stats.GenSpawned.Inc()
		p.entry.GenSpawned++
	}
}

// Stage 2.
func (p *Pipeline) intakeDespawn() {
	p.retrySaves()
	for _, pos := range p.world.queue.takeDespawn() {
		p.exportMu.Lock()
		c, err := p.world.chunks.Remove(pos)
		if err == nil {
			p.park(c)
		}
		p.exportMu.Unlock()
		if err != nil {
			p.fail(fmt.Errorf("despawn: %w", err))
			continue
		}
		if h := c.Visual(); h != 0 {
			p.sink.Remove(pos, h)
		}
		p.world.queue.clearDirty(pos)
		p.stats.Despawned.Inc()
		p.entry.Despawned++
	}
}

// park keeps an edited chunk's last contents and hands them to the saver.
func (p *Pipeline) park(c *store.Chunk) {
	if !c.Edited() {
		return
	}
	d, err := c.Data()
	if err != nil {
		return
	}
	var packed store.PackedChunk
	d.Read(func(cd *store.ChunkData) { packed = store.Pack(cd) })
	p.parked.Put(c.Pos(), packed)
	p.save(c.Pos(), packed)
}

// save reports whether the saver took the chunk. Dropped saves are kept
// and retried on later ticks.
func (p *Pipeline) save(pos store.ChunkPos, packed store.PackedChunk) bool {
	if p.saver == nil {
		return true
	}
	if p.saver.SaveChunk(pos, packed) {
		delete(p.unsaved, pos)
		p.stats.Saved.Inc()
		return true
	}
	if _, again := p.unsaved[pos]; !again {
		p.logf("[pipeline] save %s dropped, will retry", pos)
	}
	p.unsaved[pos] = packed
	p.stats.SaveDropped.Inc()
	return false
}

func (p *Pipeline) retrySaves() {
	for _, pos := range sortedKeys(p.unsaved) {
		if !p.save(pos, p.unsaved[pos]) {
			return
		}
	}
}

// Stage 3.
func (p *Pipeline) drainGeneration() {
	q := p.world.queue
	for _, pos := range sortedKeys(q.generating) {
		job := q.generating[pos]
		res, err, ok := job.task.TryTake()
		if !ok {
			continue
		}
		delete(q.generating, pos)
		q.finishedGen = append(q.finishedGen, genResult{pos: pos, epoch: job.epoch, sourced: res, err: err})
	}
}

// Stage 4.
func (p *Pipeline) installAndRequestMeshes() {
	q := p.world.queue
	for _, r := range q.finishedGen {
		c, ok := p.world.chunks.Get(r.pos)
		if !ok || c.Epoch() != r.epoch {
			p.stats.Discarded.Inc()
			p.entry.Discarded++
			continue
		}
		if r.err != nil {
			// Drop the placeholder so the position can be requested again.
			_, _ = p.world.chunks.Remove(r.pos)
			p.fail(fmt.Errorf("generate %s: %w", r.pos, r.err))
			continue
		}
		if err := c.Install(r.data); err != nil {
			p.fail(err)
			continue
		}
		if r.stored {
			// Stored chunks differ from their generated form.
			c.MarkEdited()
		}
		q.markDirty(r.pos)
		p.stats.Installed.Inc()
		p.entry.Installed++
	}
	q.finishedGen = q.finishedGen[:0]

	dirty := q.dirty()
	sort.Slice(dirty, func(i, j int) bool { return store.LessPos(dirty[i], dirty[j]) })
	table := p.models.Load()
	for _, pos := range dirty {
		if _, busy := q.meshing[pos]; busy {
			continue
		}
		c, ok := p.world.chunks.Get(pos)
		if !ok {
			q.clearDirty(pos)
			continue
		}
		handles, ok := p.meshInputs(c)
		if !ok {
			continue
		}
		q.clearDirty(pos)
		q.meshing[pos] = meshJob{epoch: c.Epoch(), task: p.spawnMesh(pos, handles, table)}
		p.stats.MeshSpawned.Inc()
		p.entry.MeshSpawned++
	}
}

// meshInputs collects the data handles of c and its six neighbors, in
// block.Directions order after the center, when all are initialized.
func (p *Pipeline) meshInputs(c *store.Chunk) ([7]*store.SharedData, bool) {
	var h [7]*store.SharedData
	d, err := c.Data()
	if err != nil {
		return h, false
	}
	h[0] = d
	for i, np := range c.Pos().Neighbors() {
		nc, ok := p.world.chunks.Get(np)
		if !ok {
			return h, false
		}
		nd, err := nc.Data()
		if err != nil {
			return h, false
		}
		h[i+1] = nd
	}
	return h, true
}

func (p *Pipeline) spawnMesh(pos store.ChunkPos, h [7]*store.SharedData, table mesh.ModelTable) *tasks.Task[*mesh.Mesh] {
	neighborPos := pos.Neighbors()
	warn := p.cfg.MeshWarnAfter
	return tasks.Spawn(p.exec, func() (*mesh.Mesh, error) {
		start := time.Now()

		// Read locks are taken in position order so two tasks sharing
		// chunks can never wait on each other behind a pending writer.
		order := [7]int{0, 1, 2, 3, 4, 5, 6}
		posOf := func(i int) store.ChunkPos {
			if i == 0 {
				return pos
			}
			return neighborPos[i-1]
		}
		sort.Slice(order[:], func(a, b int) bool { return store.LessPos(posOf(order[a]), posOf(order[b])) })

		var data [7]*store.ChunkData
		for _, i := range order {
			data[i] = h[i].RLock()
		}
		defer func() {
			for _, i := range order {
				h[i].RUnlock()
			}
		}()

		var n mesh.Neighbors
		copy(n[:], data[1:])
		m := mesh.BuildChunkMesh(data[0], n, table)

		if el := time.Since(start); el > warn {
			p.logf("[pipeline] mesh %s took %s (%d vertices)", pos, el, m.VertexCount())
		}
		return m, nil
	})
}

// Stage 5.
func (p *Pipeline) drainAndUpload() int64 {
	q := p.world.queue
	for _, pos := range sortedKeys(q.meshing) {
		job := q.meshing[pos]
		m, err, ok := job.task.TryTake()
		if !ok {
			continue
		}
		delete(q.meshing, pos)
		if err != nil {
			p.fail(fmt.Errorf("mesh %s: %w", pos, err))
			continue
		}
		p.stats.Meshed.Inc()
		q.finishedMesh = append(q.finishedMesh, meshResult{pos: pos, epoch: job.epoch, mesh: m})
	}

	budget := p.cfg.UploadBudgetBytes
	for len(q.finishedMesh) > 0 && budget > 0 {
		r := q.finishedMesh[0]
		q.finishedMesh[0] = meshResult{}
		q.finishedMesh = q.finishedMesh[1:]

		c, ok := p.world.chunks.Get(r.pos)
		if !ok || c.Epoch() != r.epoch {
			p.stats.Discarded.Inc()
			p.entry.Discarded++
			continue
		}
		if r.mesh == nil {
			p.stats.EmptyMeshes.Inc()
			// An edit emptied a chunk that was visible before.
			if h := c.Visual(); h != 0 {
				p.sink.Remove(r.pos, h)
				c.SetVisual(0)
			}
			continue
		}
		c.SetVisual(p.sink.Upload(r.pos, c.Visual(), r.mesh))

		size := r.mesh.VertexBufferSize()
		budget -= int64(size)
		p.stats.Uploaded.Inc()
		p.stats.UploadedBytes.Add(size)
		p.entry.Uploaded++
		p.entry.UploadedBytes += size
	}
	if len(q.finishedMesh) == 0 {
		q.finishedMesh = nil
	}
	return budget
}

// onBlockChanged marks the edited chunk dirty, plus the neighbor across any
// chunk face the edited cell touches.
func (p *Pipeline) onBlockChanged(ev BlockChange) {
	q := p.world.queue
	q.markDirty(ev.Chunk)
	last := store.ChunkSize - 1
	axes := [3]struct {
		v        int
		neg, pos store.ChunkPos
	}{
		{ev.Local.X, ev.Chunk.Add(-1, 0, 0), ev.Chunk.Add(1, 0, 0)},
		{ev.Local.Y, ev.Chunk.Add(0, -1, 0), ev.Chunk.Add(0, 1, 0)},
		{ev.Local.Z, ev.Chunk.Add(0, 0, -1), ev.Chunk.Add(0, 0, 1)},
	}
	for _, a := range axes {
		switch a.v {
		case 0:
			q.markDirty(a.neg)
		case last:
			q.markDirty(a.pos)
		}
	}
}

func (p *Pipeline) auditChange(ev BlockChange) {
	err := p.audit.WriteAudit(AuditEntry{
		Tick:   p.tick.Load(),
		Actor:  ev.Actor,
		Action: "SET_BLOCK",
		Pos:    [3]int{ev.X, ev.Y, ev.Z},
		From:   ev.Old.String(),
		To:     ev.New.String(),
	})
	if err != nil {
		p.logf("[pipeline] audit: %v", err)
	}
}

func sortedKeys[V any](m map[store.ChunkPos]V) []store.ChunkPos {
	keys := make([]store.ChunkPos, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return store.LessPos(keys[i], keys[j]) })
	return keys
}

// nopSink hands out handles and forgets the meshes.
type nopSink struct{ next uint64 }

func (s *nopSink) Upload(_ store.ChunkPos, handle uint64, _ *mesh.Mesh) uint64 {
	if handle != 0 {
		return handle
	}
	s.next++
	return s.next
}

func (s *nopSink) Remove(store.ChunkPos, uint64) {}
