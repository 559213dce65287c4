package world

import (
	"fmt"

	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// PackedSourceFromSnapshot indexes the chunks of a snapshot so they are
// served before the generator. Every chunk must unpack and match its digest.
func PackedSourceFromSnapshot(s snapshot.SnapshotV1) (*PackedSource, error) {
	src := NewPackedSource()
	for _, c := range s.Chunks {
		d, err := store.Unpack(c.Packed)
		if err != nil {
			return nil, fmt.Errorf("snapshot chunk %v: %w", c.Pos, err)
		}
		if c.Digest != "" && d.Digest() != c.Digest {
			return nil, fmt.Errorf("snapshot chunk %v: digest mismatch", c.Pos)
		}
		src.Put(c.ChunkPos(), c.Packed)
	}
	return src, nil
}
