package store

import "sync"

type GenerationStatus uint8

const (
	NotGenerated GenerationStatus = iota
	// AfterTerrain and AfterDecorations are reserved for staged generation.
	AfterTerrain
	AfterDecorations
	Generated
)

func (s GenerationStatus) String() string {
	switch s {
	case NotGenerated:
		return "not_generated"
	case AfterTerrain:
		return "after_terrain"
	case AfterDecorations:
		return "after_decorations"
	case Generated:
		return "generated"
	default:
		return "unknown"
	}
}

// SharedData is a lock-protected handle on one chunk's voxels. Handles are
// shared between the chunk and in-flight meshing tasks.
type SharedData struct {
	mu   sync.RWMutex
	data *ChunkData
}

func NewSharedData(d *ChunkData) *SharedData { return &SharedData{data: d} }

// RLock acquires the read lock and returns the data; release with RUnlock.
func (s *SharedData) RLock() *ChunkData {
	s.mu.RLock()
	return s.data
}

func (s *SharedData) RUnlock() { s.mu.RUnlock() }

func (s *SharedData) Read(fn func(d *ChunkData)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *SharedData) Write(fn func(d *ChunkData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Chunk is the identity of one resident chunk. Epoch distinguishes a chunk
// from an earlier chunk at the same position that has since been despawned.
type Chunk struct {
	pos   ChunkPos
	epoch uint64

	mu     sync.RWMutex
	data   *SharedData
	status GenerationStatus
	visual uint64
	edited bool
}

func NewChunk(pos ChunkPos, epoch uint64) *Chunk {
	return &Chunk{pos: pos, epoch: epoch}
}

func (c *Chunk) Pos() ChunkPos { return c.pos }
func (c *Chunk) Epoch() uint64 { return c.epoch }

func (c *Chunk) Status() GenerationStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Chunk) SetStatus(s GenerationStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Install sets the chunk's voxels once; a second install is a sequencing bug.
func (c *Chunk) Install(d *ChunkData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data != nil {
		return chunkErr(c.pos, ErrAlreadyInitialized)
	}
	c.data = NewSharedData(d)
	c.status = Generated
	return nil
}

func (c *Chunk) Data() (*SharedData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return nil, chunkErr(c.pos, ErrUninitialized)
	}
	return c.data, nil
}

func (c *Chunk) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil
}

// Visual is the handle of the chunk's uploaded mesh, 0 when none exists.
func (c *Chunk) Visual() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visual
}

func (c *Chunk) SetVisual(h uint64) {
	c.mu.Lock()
	c.visual = h
	c.mu.Unlock()
}

// MarkEdited records that the voxels diverged from what the generator produced.
func (c *Chunk) MarkEdited() {
	c.mu.Lock()
	c.edited = true
	c.mu.Unlock()
}

func (c *Chunk) Edited() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.edited
}
