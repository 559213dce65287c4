package store

import "voxelforge.ai/internal/sim/world/block"

// Builder assembles a consistent palette and cell array for a whole chunk.
// Generators fill it cell by cell and call Build once.
type Builder struct {
	index  map[block.BlockState]uint16
	states []block.BlockState
	cells  []uint16
}

// NewBuilder starts a chunk where every cell holds fill.
func NewBuilder(fill block.BlockState) *Builder {
	return &Builder{
		index:  map[block.BlockState]uint16{fill: 0},
		states: []block.BlockState{fill},
		cells:  make([]uint16, BlocksPerChunk),
	}
}

// Set writes one cell. Coordinates outside the chunk fail with
// ErrOutOfBounds, as ChunkData.SetBlock does.
func (b *Builder) Set(x, y, z int, s block.BlockState) error {
	if !InBounds(x, y, z) {
		return boundsErr(x, y, z)
	}
	idx, ok := b.index[s]
	if !ok {
		idx = uint16(len(b.states))
		b.index[s] = idx
		b.states = append(b.states, s)
	}
	b.cells[Index(x, y, z)] = idx
	return nil
}

// Build returns single-mode data for a uniform volume and dense data otherwise.
// States that ended up unused are dropped from the palette.
func (b *Builder) Build() *ChunkData {
	counts := make([]int, len(b.states))
	for _, c := range b.cells {
		counts[c]++
	}
	remap := make([]int, len(b.states))
	var palette []PaletteEntry
	for i, n := range counts {
		if n == 0 {
			remap[i] = -1
			continue
		}
		remap[i] = len(palette)
		palette = append(palette, PaletteEntry{RefCount: uint16(n), Block: b.states[i]})
	}
	if len(palette) == 1 {
		return Single(palette[0].Block)
	}

	width := widthFor(len(palette))
	raw := make([]byte, BlocksPerChunk*width)
	out := WithData(raw, palette)
	for i, c := range b.cells {
		out.setIndex(i, remap[c])
	}
	return out
}
