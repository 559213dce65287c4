// Package encoding renders chunk cells as compact text for tools and the
// admin API.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// EncodeRLE encodes a sequence of palette indices into base64(varint pairs).
// The pairs are (index, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. Output longer than limit is an error; a
// limit <= 0 disables the check.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("palette index too large: %d", b)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("run overflows %d cells", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}

// CellDump is a chunk's palette plus its RLE-encoded cell indices.
type CellDump struct {
	Palette []string `json:"palette"`
	RLE     string   `json:"rle"`
	Runs    int      `json:"runs"`
}

// EncodeCells dumps c. Free palette slots are kept so indices stay valid.
func EncodeCells(c *store.ChunkData) CellDump {
	d := CellDump{Palette: make([]string, c.PaletteLen())}
	for i := range d.Palette {
		e, _ := c.Palette(i)
		d.Palette[i] = e.Block.String()
	}
	cells := c.Cells()
	d.RLE = EncodeRLE(cells)
	for i := range cells {
		if i == 0 || cells[i] != cells[i-1] {
			d.Runs++
		}
	}
	return d
}

// DecodeCells rebuilds a chunk from a dump.
func DecodeCells(d CellDump) (*store.ChunkData, error) {
	if len(d.Palette) == 0 {
		return nil, fmt.Errorf("empty palette")
	}
	states := make([]block.BlockState, len(d.Palette))
	for i, s := range d.Palette {
		st, err := block.ParseState(s)
		if err != nil {
			return nil, fmt.Errorf("palette %d: %w", i, err)
		}
		states[i] = st
	}
	cells, err := DecodeRLE(d.RLE, store.BlocksPerChunk)
	if err != nil {
		return nil, err
	}
	if len(cells) != store.BlocksPerChunk {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(cells), store.BlocksPerChunk)
	}
	b := store.NewBuilder(states[0])
	for i, v := range cells {
		if int(v) >= len(states) {
			return nil, fmt.Errorf("cell %d: palette index %d out of range", i, v)
		}
		x, y, z := store.IndexToXYZ(i)
		if err := b.Set(x, y, z, states[v]); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
