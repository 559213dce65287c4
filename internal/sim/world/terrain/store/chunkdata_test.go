package store

import (
	"errors"
	"fmt"
	"testing"

	"voxelforge.ai/internal/sim/world/block"
)

var (
	air   = block.Air()
	stone = block.Unchecked("stone", nil)
	dirt  = block.Unchecked("dirt", nil)
)

func numbered(i int) block.BlockState {
	return block.Unchecked("wool", map[string]string{"n": fmt.Sprint(i)})
}

func assertRefCounts(t *testing.T, c *ChunkData) {
	t.Helper()
	if got := c.RefCountSum(); got != BlocksPerChunk {
		t.Fatalf("ref count sum=%d want %d", got, BlocksPerChunk)
	}
	counts := make([]int, c.PaletteLen())
	for _, v := range c.Cells() {
		counts[v]++
	}
	for i, n := range counts {
		e, _ := c.Palette(i)
		if int(e.RefCount) != n {
			t.Fatalf("palette %d ref_count=%d but %d cells point at it", i, e.RefCount, n)
		}
	}
}

func TestSingleMode(t *testing.T) {
	c := Single(air)
	if !c.IsSingle() || !c.IsEmpty() {
		t.Fatalf("expected single empty chunk")
	}
	e, _ := c.Palette(0)
	if c.PaletteLen() != 1 || e.RefCount != BlocksPerChunk {
		t.Fatalf("palette=%d ref=%d", c.PaletteLen(), e.RefCount)
	}
	idx, err := c.BlockAt(31, 31, 31)
	if err != nil || idx != 0 {
		t.Fatalf("BlockAt=%d,%v", idx, err)
	}
}

func TestSingleToDenseTransition(t *testing.T) {
	c := Single(air)
	old, err := c.SetBlock(3, 4, 5, stone)
	if err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if old != air {
		t.Fatalf("old=%v want air", old)
	}
	if c.IsSingle() {
		t.Fatalf("chunk still single after differing write")
	}
	for i := 0; i < BlocksPerChunk; i++ {
		x, y, z := IndexToXYZ(i)
		got, _ := c.GetBlock(x, y, z)
		want := air
		if x == 3 && y == 4 && z == 5 {
			want = stone
		}
		if got != want {
			t.Fatalf("cell (%d,%d,%d)=%v want %v", x, y, z, got, want)
		}
	}
	assertRefCounts(t, c)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := Single(air)
	coords := [][3]int{{0, 0, 0}, {31, 31, 31}, {0, 31, 0}, {17, 2, 30}}
	states := []block.BlockState{stone, dirt, numbered(1), air}
	for i, p := range coords {
		if _, err := c.SetBlock(p[0], p[1], p[2], states[i]); err != nil {
			t.Fatalf("SetBlock: %v", err)
		}
		got, err := c.GetBlock(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if got != states[i] {
			t.Fatalf("GetBlock(%v)=%v want %v", p, got, states[i])
		}
		assertRefCounts(t, c)
	}
}

func TestIdenticalWriteIsNoop(t *testing.T) {
	c := Single(stone)
	if _, err := c.SetBlock(1, 1, 1, stone); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if !c.IsSingle() {
		t.Fatalf("identical write materialized dense storage")
	}

	_, _ = c.SetBlock(1, 1, 1, dirt)
	before := c.Clone()
	if _, err := c.SetBlock(1, 1, 1, dirt); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if !c.Equal(before) {
		t.Fatalf("identical write changed palette or cells")
	}
}

func TestFreeSlotIsRecycled(t *testing.T) {
	c := Single(air)
	_, _ = c.SetBlock(0, 0, 0, stone)
	_, _ = c.SetBlock(0, 0, 0, air)
	if c.PaletteLen() != 2 {
		t.Fatalf("palette len=%d want 2", c.PaletteLen())
	}
	e, _ := c.Palette(1)
	if !e.IsFree() {
		t.Fatalf("stone entry should be free, ref=%d", e.RefCount)
	}
	_, _ = c.SetBlock(5, 5, 5, dirt)
	if c.PaletteLen() != 2 {
		t.Fatalf("free slot was not recycled, palette len=%d", c.PaletteLen())
	}
	got, _ := c.GetBlock(5, 5, 5)
	if got != dirt {
		t.Fatalf("got %v want dirt", got)
	}
	assertRefCounts(t, c)
}

func TestWidthGrowthPreservesCells(t *testing.T) {
	c := Single(air)
	for i := 1; i <= 255; i++ {
		x, y, z := IndexToXYZ(i)
		_, _ = c.SetBlock(x, y, z, numbered(i))
	}
	if c.Width() != 1 || c.PaletteLen() != 256 {
		t.Fatalf("width=%d palette=%d before growth", c.Width(), c.PaletteLen())
	}
	x, y, z := IndexToXYZ(256)
	_, _ = c.SetBlock(x, y, z, numbered(256))
	if c.Width() != 2 {
		t.Fatalf("width=%d want 2 after 257th entry", c.Width())
	}
	for i := 1; i <= 256; i++ {
		x, y, z := IndexToXYZ(i)
		got, _ := c.GetBlock(x, y, z)
		if got != numbered(i) {
			t.Fatalf("cell %d=%v want %v", i, got, numbered(i))
		}
	}
	got, _ := c.GetBlock(0, 0, 0)
	if got != air {
		t.Fatalf("cell 0=%v want air", got)
	}
	assertRefCounts(t, c)
}

func TestGrowDataIsolated(t *testing.T) {
	raw := make([]byte, BlocksPerChunk)
	raw[7] = 1
	c := WithData(raw, []PaletteEntry{{RefCount: BlocksPerChunk - 1, Block: air}, {RefCount: 1, Block: stone}})
	c.growData()
	if c.Width() != 2 || len(c.raw) != 2*BlocksPerChunk {
		t.Fatalf("width=%d len=%d", c.Width(), len(c.raw))
	}
	if c.IndexAt(7) != 1 || c.IndexAt(8) != 0 {
		t.Fatalf("re-encode changed values: %d %d", c.IndexAt(7), c.IndexAt(8))
	}
}

func TestOutOfBounds(t *testing.T) {
	c := Single(air)
	bad := [][3]int{{32, 0, 0}, {0, 32, 0}, {0, 0, 32}, {-1, 0, 0}}
	for _, p := range bad {
		if _, err := c.BlockAt(p[0], p[1], p[2]); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("BlockAt(%v) err=%v want ErrOutOfBounds", p, err)
		}
		if _, err := c.SetBlock(p[0], p[1], p[2], stone); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("SetBlock(%v) err=%v want ErrOutOfBounds", p, err)
		}
	}
	if !c.IsSingle() {
		t.Fatalf("out of bounds write mutated chunk")
	}
}

func TestWithDataLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	WithData(make([]byte, 10), []PaletteEntry{{RefCount: BlocksPerChunk, Block: air}})
}

func TestBuilderRejectsOutOfBounds(t *testing.T) {
	b := NewBuilder(air)
	for _, c := range [][3]int{{-1, 0, 0}, {0, ChunkSize, 0}, {0, 0, 40}} {
		if err := b.Set(c[0], c[1], c[2], stone); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("set %v: err=%v want ErrOutOfBounds", c, err)
		}
	}
	if c := b.Build(); !c.IsEmpty() {
		t.Fatalf("rejected writes changed the chunk")
	}
}

func TestBuilderCollapsesUniform(t *testing.T) {
	b := NewBuilder(air)
	b.Set(1, 1, 1, stone)
	b.Set(1, 1, 1, air)
	c := b.Build()
	if !c.IsSingle() || !c.IsEmpty() {
		t.Fatalf("uniform build should be single air")
	}

	b = NewBuilder(air)
	for x := 0; x < ChunkSize; x++ {
		b.Set(x, 0, 0, stone)
	}
	c = b.Build()
	if c.IsSingle() || c.PaletteLen() != 2 {
		t.Fatalf("single=%v palette=%d", c.IsSingle(), c.PaletteLen())
	}
	got, _ := c.GetBlock(31, 0, 0)
	if got != stone {
		t.Fatalf("got %v want stone", got)
	}
	assertRefCounts(t, c)
}
