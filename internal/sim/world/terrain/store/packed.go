package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/willf/bitset"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/logic/mathx"
)

// PackedEntry is the serialized form of a PaletteEntry.
type PackedEntry struct {
	State    string `json:"state"`
	RefCount uint16 `json:"ref_count"`
}

// PackedChunk is the bit-width-minimal form of ChunkData. Each cell takes
// Bits bits (a power of two), cells never straddle a 64-bit word, and
// Bits == 0 marks a single-mode chunk with no words at all.
type PackedChunk struct {
	Palette []PackedEntry `json:"palette"`
	Bits    int           `json:"bits"`
	Words   []uint64      `json:"words,omitempty"`
}

// packedBits is the per-cell width used for a dense chunk with n palette slots.
func packedBits(n int) int {
	b := mathx.NextPow2(mathx.BitsFor(n))
	if b < 1 {
		b = 1
	}
	return b
}

func wordsFor(bits int) int {
	perWord := 64 / bits
	return (BlocksPerChunk + perWord - 1) / perWord
}

func Pack(c *ChunkData) PackedChunk {
	out := PackedChunk{Palette: make([]PackedEntry, len(c.palette))}
	for i, e := range c.palette {
		out.Palette[i] = PackedEntry{State: e.Block.String(), RefCount: e.RefCount}
	}
	if c.raw == nil {
		return out
	}

	bits := packedBits(len(c.palette))
	perWord := 64 / bits
	bs := bitset.New(uint(wordsFor(bits) * 64))
	for i := 0; i < BlocksPerChunk; i++ {
		v := c.IndexAt(i)
		if v == 0 {
			continue
		}
		base := uint((i/perWord)*64 + (i%perWord)*bits)
		for b := 0; b < bits; b++ {
			if v>>uint(b)&1 == 1 {
				bs.Set(base + uint(b))
			}
		}
	}
	out.Bits = bits
	out.Words = append([]uint64(nil), bs.Bytes()...)
	return out
}

// Unpack rebuilds ChunkData from its packed form. Unlike the in-memory
// invariants, malformed input is reported as an error.
func Unpack(p PackedChunk) (*ChunkData, error) {
	if len(p.Palette) == 0 {
		return nil, fmt.Errorf("packed chunk: empty palette")
	}
	palette := make([]PaletteEntry, len(p.Palette))
	for i, e := range p.Palette {
		s, err := block.ParseState(e.State)
		if err != nil {
			return nil, fmt.Errorf("packed chunk: palette %d: %w", i, err)
		}
		palette[i] = PaletteEntry{RefCount: e.RefCount, Block: s}
	}

	if p.Bits == 0 {
		if len(palette) != 1 || palette[0].RefCount != BlocksPerChunk {
			return nil, fmt.Errorf("packed chunk: single mode needs one entry with %d refs", BlocksPerChunk)
		}
		if len(p.Words) != 0 {
			return nil, fmt.Errorf("packed chunk: single mode with %d words", len(p.Words))
		}
		return Single(palette[0].Block), nil
	}

	if p.Bits != packedBits(len(palette)) {
		return nil, fmt.Errorf("packed chunk: bits=%d want %d for %d palette entries", p.Bits, packedBits(len(palette)), len(palette))
	}
	if len(p.Words) != wordsFor(p.Bits) {
		return nil, fmt.Errorf("packed chunk: %d words want %d", len(p.Words), wordsFor(p.Bits))
	}

	bs := bitset.From(append([]uint64(nil), p.Words...))
	perWord := 64 / p.Bits
	width := widthFor(len(palette))
	raw := make([]byte, BlocksPerChunk*width)
	out := WithData(raw, palette)
	counts := make([]int, len(palette))
	for i := 0; i < BlocksPerChunk; i++ {
		base := uint((i/perWord)*64 + (i%perWord)*p.Bits)
		v := 0
		for b := 0; b < p.Bits; b++ {
			if bs.Test(base + uint(b)) {
				v |= 1 << uint(b)
			}
		}
		if v >= len(palette) {
			return nil, fmt.Errorf("packed chunk: cell %d references palette %d of %d", i, v, len(palette))
		}
		counts[v]++
		out.setIndex(i, v)
	}
	for i, n := range counts {
		if int(palette[i].RefCount) != n {
			return nil, fmt.Errorf("packed chunk: palette %d (%s) ref_count=%d but %d cells", i, palette[i].Block, palette[i].RefCount, n)
		}
	}
	return out, nil
}

// Digest is a sha256 over the packed form, stable across processes.
func (c *ChunkData) Digest() string { return Pack(c).Digest() }

func (p PackedChunk) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, e := range p.Palette {
		h.Write([]byte(e.State))
		binary.LittleEndian.PutUint16(tmp[:2], e.RefCount)
		h.Write(tmp[:2])
	}
	binary.LittleEndian.PutUint64(tmp[:], uint64(p.Bits))
	h.Write(tmp[:])
	for _, w := range p.Words {
		binary.LittleEndian.PutUint64(tmp[:], w)
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
