package store

import (
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ChunkMap is the authoritative position -> chunk index. One RWMutex guards
// the structure; each chunk's voxels carry their own lock.
type ChunkMap struct {
	mu     sync.RWMutex
	chunks map[ChunkPos]*Chunk

	nextEpoch atomic.Uint64
}

func NewChunkMap() *ChunkMap {
	return &ChunkMap{chunks: map[ChunkPos]*Chunk{}}
}

// Add creates a fresh, uninitialized chunk at pos.
func (m *ChunkMap) Add(pos ChunkPos) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[pos]; ok {
		return nil, chunkErr(pos, ErrDuplicateChunk)
	}
	c := NewChunk(pos, m.nextEpoch.Add(1))
	m.chunks[pos] = c
	return c, nil
}

func (m *ChunkMap) Remove(pos ChunkPos) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[pos]
	if !ok {
		return nil, chunkErr(pos, ErrChunkNotFound)
	}
	delete(m.chunks, pos)
	return c, nil
}

func (m *ChunkMap) Get(pos ChunkPos) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[pos]
	return c, ok
}

func (m *ChunkMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Positions returns every resident position in sorted order.
func (m *ChunkMap) Positions() []ChunkPos {
	m.mu.RLock()
	keys := maps.Keys(m.chunks)
	m.mu.RUnlock()
	slices.SortFunc(keys, LessPos)
	return keys
}

// Range calls fn for each chunk under the read lock until fn returns false.
// fn must not call back into the map's mutating methods.
func (m *ChunkMap) Range(fn func(c *Chunk) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.chunks {
		if !fn(c) {
			return
		}
	}
}
