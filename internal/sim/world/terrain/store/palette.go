package store

import "voxelforge.ai/internal/sim/world/block"

// PaletteEntry is one row of a chunk-local palette. RefCount is the number
// of cells pointing at the entry; zero marks a free slot.
type PaletteEntry struct {
	RefCount uint16
	Block    block.BlockState
}

func (e PaletteEntry) IsFree() bool { return e.RefCount == 0 }
