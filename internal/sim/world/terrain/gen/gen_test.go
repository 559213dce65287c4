package gen

import (
	"testing"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func testRegistry(t *testing.T) *block.Registry {
	t.Helper()
	r := block.NewRegistry()
	for _, id := range []string{block.AirID, "stone", "dirt", "grass", "sand", "gravel", "coal_ore", "iron_ore"} {
		if err := r.Register(block.Block{ID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	r.Freeze()
	return r
}

func TestFlatGeneratorLayers(t *testing.T) {
	g, err := NewGenerator(testRegistry(t), FlatHeightMap{Level: 10}, Config{Seed: 1, BiomeRegionSize: 1 << 20})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	c, err := g.Generate(store.ChunkPos{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	top, _ := c.GetBlock(4, 10, 4)
	above, _ := c.GetBlock(4, 11, 4)
	sub, _ := c.GetBlock(4, 8, 4)
	if !above.IsAir() {
		t.Fatalf("above surface=%v want air", above)
	}
	if top.IsAir() || sub.IsAir() {
		t.Fatalf("surface=%v subsurface=%v should be solid", top, sub)
	}
	if c.RefCountSum() != store.BlocksPerChunk {
		t.Fatalf("ref count sum=%d", c.RefCountSum())
	}
}

func TestGeneratorSingleModeAboveAndBelow(t *testing.T) {
	g, err := NewGenerator(testRegistry(t), FlatHeightMap{Level: 0}, Config{Seed: 1})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	sky, _ := g.Generate(store.ChunkPos{Y: 2})
	if !sky.IsEmpty() {
		t.Fatalf("sky chunk should be single air")
	}
}

func TestGeneratorMissingBlock(t *testing.T) {
	r := block.NewRegistry()
	_ = r.Register(block.Block{ID: block.AirID})
	if _, err := NewGenerator(r, FlatHeightMap{}, Config{}); err == nil {
		t.Fatalf("expected error for missing stone")
	}
}

func TestCachedHeightMap(t *testing.T) {
	calls := 0
	inner := heightFunc(func(x, z int) int { calls++; return x + z })
	c := NewCachedHeightMap(inner, 2)
	if c.Height(1, 2) != 3 || c.Height(1, 2) != 3 {
		t.Fatalf("wrong height")
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
	c.Height(5, 5)
	c.Height(6, 6)
	if c.Len() > 2 {
		t.Fatalf("cache grew past bound: %d", c.Len())
	}
}

func TestNewHeightMapProviders(t *testing.T) {
	for _, p := range []string{"flat", "sine", "noise"} {
		hm, err := NewHeightMap(Config{Provider: p, Seed: 3, BaseHeight: 20, Amplitude: 8, Period: 64, Scale: 64})
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		h := hm.Height(100, -40)
		if h < 20-8 || h > 20+8 {
			t.Fatalf("%s: height %d outside base +- amplitude", p, h)
		}
		if hm.Height(100, -40) != h {
			t.Fatalf("%s: height not deterministic", p)
		}
	}
	if _, err := NewHeightMap(Config{Provider: "nope"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

type heightFunc func(x, z int) int

func (f heightFunc) Height(x, z int) int { return f(x, z) }
