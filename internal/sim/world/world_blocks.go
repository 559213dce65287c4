package world

import (
	"fmt"
	"sync"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// BlockWorld is the public block API over the resident chunks. It is safe
// for concurrent use; structural changes happen only on the pipeline tick.
type BlockWorld struct {
	reg    *block.Registry
	chunks *store.ChunkMap
	queue  *ChunkQueue

	mu        sync.RWMutex
	listeners []func(BlockChange)
}

func NewBlockWorld(reg *block.Registry) *BlockWorld {
	return &BlockWorld{
		reg:    reg,
		chunks: store.NewChunkMap(),
		queue:  NewChunkQueue(),
	}
}

func (w *BlockWorld) Registry() *block.Registry { return w.reg }
func (w *BlockWorld) Chunks() *store.ChunkMap   { return w.chunks }
func (w *BlockWorld) Queue() *ChunkQueue        { return w.queue }

// OnBlockChanged registers fn to run after every edit that changed a cell.
// Listeners run on the editing goroutine.
func (w *BlockWorld) OnBlockChanged(fn func(BlockChange)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *BlockWorld) chunkData(pos store.ChunkPos) (*store.Chunk, *store.SharedData, error) {
	c, ok := w.chunks.Get(pos)
	if !ok {
		return nil, nil, &store.PosError{X: pos.X, Y: pos.Y, Z: pos.Z, Err: ErrUnloadedChunk}
	}
	d, err := c.Data()
	if err != nil {
		return nil, nil, err
	}
	return c, d, nil
}

func (w *BlockWorld) GetBlock(x, y, z int) (block.BlockState, error) {
	cp, lp := store.SplitWorld(x, y, z)
	_, d, err := w.chunkData(cp)
	if err != nil {
		return block.BlockState{}, err
	}
	var (
		s    block.BlockState
		gerr error
	)
	d.Read(func(cd *store.ChunkData) {
		s, gerr = cd.GetBlock(lp.X, lp.Y, lp.Z)
	})
	return s, gerr
}

// SetBlock writes one cell and returns the state it replaced.
func (w *BlockWorld) SetBlock(x, y, z int, s block.BlockState) (block.BlockState, error) {
	return w.SetBlockAs("", x, y, z, s)
}

// SetBlockAs is SetBlock with an actor recorded on the change notification.
func (w *BlockWorld) SetBlockAs(actor string, x, y, z int, s block.BlockState) (block.BlockState, error) {
	cp, lp := store.SplitWorld(x, y, z)
	c, d, err := w.chunkData(cp)
	if err != nil {
		return block.BlockState{}, err
	}
	var old block.BlockState
	err = d.Write(func(cd *store.ChunkData) error {
		var err error
		old, err = cd.SetBlock(lp.X, lp.Y, lp.Z, s)
		return err
	})
	if err != nil {
		return block.BlockState{}, err
	}
	if old == s {
		return old, nil
	}
	c.MarkEdited()

	ev := BlockChange{X: x, Y: y, Z: z, Chunk: cp, Local: lp, Old: old, New: s, Actor: actor}
	w.mu.RLock()
	ls := w.listeners
	w.mu.RUnlock()
	for _, fn := range ls {
		fn(ev)
	}
	return old, nil
}

// SetBlockID resolves id with the registry's default state and writes it.
func (w *BlockWorld) SetBlockID(actor string, x, y, z int, id string) (block.BlockState, error) {
	s, err := block.NewState(w.reg, id)
	if err != nil {
		return block.BlockState{}, err
	}
	return w.SetBlockAs(actor, x, y, z, s)
}

// QueueChunkGeneration enqueues pos without checking residency; callers
// check IsResident and IsPending first.
func (w *BlockWorld) QueueChunkGeneration(pos store.ChunkPos) { w.queue.pushGenerate(pos) }

func (w *BlockWorld) QueueChunkDespawn(pos store.ChunkPos) { w.queue.pushDespawn(pos) }

func (w *BlockWorld) IsResident(pos store.ChunkPos) bool {
	_, ok := w.chunks.Get(pos)
	return ok
}

// IsPending reports whether pos is waiting in the generation intake.
func (w *BlockWorld) IsPending(pos store.ChunkPos) bool { return w.queue.isQueuedGenerate(pos) }

// ChunkSummary is a read-only view of one resident chunk.
type ChunkSummary struct {
	Pos        store.ChunkPos `json:"pos"`
	Epoch      uint64         `json:"epoch"`
	Status     string         `json:"status"`
	Visual     uint64         `json:"visual"`
	Edited     bool           `json:"edited"`
	PaletteLen int            `json:"palette_len,omitempty"`
	Single     bool           `json:"single,omitempty"`
}

func (w *BlockWorld) Summary(pos store.ChunkPos) (ChunkSummary, error) {
	c, ok := w.chunks.Get(pos)
	if !ok {
		return ChunkSummary{}, fmt.Errorf("%s: %w", pos, ErrUnloadedChunk)
	}
	s := ChunkSummary{
		Pos:    pos,
		Epoch:  c.Epoch(),
		Status: c.Status().String(),
		Visual: c.Visual(),
		Edited: c.Edited(),
	}
	if d, err := c.Data(); err == nil {
		d.Read(func(cd *store.ChunkData) {
			s.PaletteLen = cd.PaletteLen()
			s.Single = cd.IsSingle()
		})
	}
	return s, nil
}
