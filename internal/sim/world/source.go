package world

import (
	"fmt"
	"sort"
	"sync"

	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// Restorer is a Source that can tell stored chunks from generated ones.
type Restorer interface {
	Restore(pos store.ChunkPos) (d *store.ChunkData, stored bool, err error)
}

// ChainSource asks each loader in order and falls back to generation.
type ChainSource struct {
	Loaders  []ChunkLoader
	Fallback Source
}

func (s ChainSource) Generate(pos store.ChunkPos) (*store.ChunkData, error) {
	d, _, err := s.Restore(pos)
	return d, err
}

func (s ChainSource) Restore(pos store.ChunkPos) (*store.ChunkData, bool, error) {
	for _, l := range s.Loaders {
		if l == nil {
			continue
		}
		d, ok, err := l.LoadChunk(pos)
		if err != nil {
			return nil, false, fmt.Errorf("load %s: %w", pos, err)
		}
		if ok {
			return d, true, nil
		}
	}
	if s.Fallback == nil {
		return nil, false, fmt.Errorf("no source for %s", pos)
	}
	d, err := s.Fallback.Generate(pos)
	return d, false, err
}

// restore runs src for one position. A nil source yields an all-air chunk.
func restore(src Source, pos store.ChunkPos) (sourced, error) {
	if src == nil {
		return sourced{data: store.Single(block.Air())}, nil
	}
	if r, ok := src.(Restorer); ok {
		d, stored, err := r.Restore(pos)
		return sourced{data: d, stored: stored}, err
	}
	d, err := src.Generate(pos)
	return sourced{data: d}, err
}

// PackedSource serves chunks from an in-memory set of packed chunks, such
// as the contents of a snapshot.
type PackedSource struct {
	mu     sync.RWMutex
	chunks map[store.ChunkPos]store.PackedChunk
}

func NewPackedSource() *PackedSource {
	return &PackedSource{chunks: map[store.ChunkPos]store.PackedChunk{}}
}

func (s *PackedSource) Put(pos store.ChunkPos, p store.PackedChunk) {
	s.mu.Lock()
	s.chunks[pos] = p
	s.mu.Unlock()
}

func (s *PackedSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *PackedSource) LoadChunk(pos store.ChunkPos) (*store.ChunkData, bool, error) {
	s.mu.RLock()
	p, ok := s.chunks[pos]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	d, err := store.Unpack(p)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// Chunks returns the held chunks in position order, marked edited. A nil
// source holds nothing.
func (s *PackedSource) Chunks() []snapshot.ChunkV1 {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]snapshot.ChunkV1, 0, len(s.chunks))
	for pos, p := range s.chunks {
		out = append(out, snapshot.ChunkV1{
			Pos:    [3]int{pos.X, pos.Y, pos.Z},
			Edited: true,
			Digest: p.Digest(),
			Packed: p,
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return store.LessPos(out[i].ChunkPos(), out[j].ChunkPos()) })
	return out
}
