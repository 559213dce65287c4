package store

import (
	"encoding/binary"
	"fmt"

	"voxelforge.ai/internal/sim/world/block"
)

// maxWidth1Palette is the number of palette slots addressable with one byte per cell.
const maxWidth1Palette = 256

// ChunkData is the palette-compressed voxel grid of one chunk.
//
// In single mode raw is nil and the palette holds exactly one entry that
// covers every cell. In dense mode raw holds one palette index per cell,
// width bytes wide (little endian when width is 2).
type ChunkData struct {
	palette []PaletteEntry
	raw     []byte
	width   int
}

// Single returns a uniform chunk without a per-cell array.
func Single(s block.BlockState) *ChunkData {
	return &ChunkData{
		palette: []PaletteEntry{{RefCount: BlocksPerChunk, Block: s}},
		width:   1,
	}
}

// WithData wraps a palette and a raw cell array built together by the caller.
// The raw length must match the width implied by the palette length; a
// mismatch means the pair was built inconsistently and is fatal.
func WithData(raw []byte, palette []PaletteEntry) *ChunkData {
	width := widthFor(len(palette))
	if len(raw) != BlocksPerChunk*width {
		panic(fmt.Sprintf("chunk data: raw length %d does not match palette of %d entries (want %d)",
			len(raw), len(palette), BlocksPerChunk*width))
	}
	return &ChunkData{palette: palette, raw: raw, width: width}
}

func widthFor(paletteLen int) int {
	if paletteLen <= maxWidth1Palette {
		return 1
	}
	return 2
}

func (c *ChunkData) IsSingle() bool { return c.raw == nil }

// IsEmpty reports whether the chunk is a single-mode air volume.
func (c *ChunkData) IsEmpty() bool {
	return c.raw == nil && c.palette[0].Block.IsAir()
}

// Width is the number of bytes per cell in dense mode.
func (c *ChunkData) Width() int { return c.width }

func (c *ChunkData) PaletteLen() int { return len(c.palette) }

func (c *ChunkData) Palette(i int) (PaletteEntry, bool) {
	if i < 0 || i >= len(c.palette) {
		return PaletteEntry{}, false
	}
	return c.palette[i], true
}

// RefCountSum totals the reference counts of every palette entry.
func (c *ChunkData) RefCountSum() int {
	n := 0
	for _, e := range c.palette {
		n += int(e.RefCount)
	}
	return n
}

// BlockAt returns the palette index stored at a local coordinate.
func (c *ChunkData) BlockAt(x, y, z int) (int, error) {
	if !InBounds(x, y, z) {
		return 0, boundsErr(x, y, z)
	}
	return c.IndexAt(Index(x, y, z)), nil
}

// IndexAt returns the palette index of a linear cell index. No bounds check.
func (c *ChunkData) IndexAt(i int) int {
	if c.raw == nil {
		return 0
	}
	if c.width == 1 {
		return int(c.raw[i])
	}
	return int(binary.LittleEndian.Uint16(c.raw[2*i:]))
}

func (c *ChunkData) setIndex(i, v int) {
	if c.width == 1 {
		c.raw[i] = byte(v)
		return
	}
	binary.LittleEndian.PutUint16(c.raw[2*i:], uint16(v))
}

func (c *ChunkData) GetBlock(x, y, z int) (block.BlockState, error) {
	idx, err := c.BlockAt(x, y, z)
	if err != nil {
		return block.BlockState{}, err
	}
	return c.palette[idx].Block, nil
}

// SetBlock writes one cell and returns the state it replaced.
func (c *ChunkData) SetBlock(x, y, z int, s block.BlockState) (block.BlockState, error) {
	if !InBounds(x, y, z) {
		return block.BlockState{}, boundsErr(x, y, z)
	}
	if c.raw == nil {
		old := c.palette[0].Block
		if old == s {
			return old, nil
		}
		c.raw = make([]byte, BlocksPerChunk)
		c.width = 1
		c.palette[0].RefCount = BlocksPerChunk
	}

	i := Index(x, y, z)
	oldIdx := c.IndexAt(i)
	old := c.palette[oldIdx].Block
	if old == s {
		return old, nil
	}
	if c.palette[oldIdx].IsFree() {
		panic(fmt.Sprintf("chunk data: palette entry %d (%s) is free but referenced by cell %d", oldIdx, old, i))
	}
	c.palette[oldIdx].RefCount--

	for idx := range c.palette {
		if c.palette[idx].Block == s {
			c.palette[idx].RefCount++
			c.setIndex(i, idx)
			return old, nil
		}
	}

	idx := c.addPalette(s)
	c.palette[idx].RefCount++
	c.setIndex(i, idx)
	return old, nil
}

// addPalette stores a new state, reusing a free slot when there is one.
func (c *ChunkData) addPalette(s block.BlockState) int {
	for idx := range c.palette {
		if c.palette[idx].IsFree() {
			c.palette[idx] = PaletteEntry{Block: s}
			return idx
		}
	}
	if widthFor(len(c.palette)+1) > c.width {
		c.growData()
	}
	c.palette = append(c.palette, PaletteEntry{Block: s})
	return len(c.palette) - 1
}

// growData re-encodes every cell from one byte to two bytes per cell.
// Width never shrinks.
func (c *ChunkData) growData() {
	if c.width != 1 || c.raw == nil {
		panic(fmt.Sprintf("chunk data: cannot grow width %d (single=%v)", c.width, c.raw == nil))
	}
	wide := make([]byte, 2*BlocksPerChunk)
	for i, v := range c.raw {
		binary.LittleEndian.PutUint16(wide[2*i:], uint16(v))
	}
	c.raw = wide
	c.width = 2
}

// Clone returns a deep copy.
func (c *ChunkData) Clone() *ChunkData {
	out := &ChunkData{
		palette: append([]PaletteEntry(nil), c.palette...),
		width:   c.width,
	}
	if c.raw != nil {
		out.raw = append([]byte(nil), c.raw...)
	}
	return out
}

// Equal reports whether both chunks have the same representation: mode,
// width, palette (including free slots) and cells.
func (c *ChunkData) Equal(o *ChunkData) bool {
	if c == nil || o == nil {
		return c == o
	}
	if (c.raw == nil) != (o.raw == nil) || c.width != o.width || len(c.palette) != len(o.palette) {
		return false
	}
	for i := range c.palette {
		if c.palette[i] != o.palette[i] {
			return false
		}
	}
	if len(c.raw) != len(o.raw) {
		return false
	}
	for i := range c.raw {
		if c.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// Cells returns the palette index of every cell in linear order.
func (c *ChunkData) Cells() []uint16 {
	out := make([]uint16, BlocksPerChunk)
	if c.raw == nil {
		return out
	}
	for i := range out {
		out[i] = uint16(c.IndexAt(i))
	}
	return out
}
