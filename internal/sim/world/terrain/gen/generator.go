package gen

import (
	"fmt"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

type Config struct {
	Provider     string
	Seed         int64
	BaseHeight   int
	Amplitude    float64
	Period       float64
	Scale        float64
	CacheColumns int

	BiomeRegionSize        int
	OreScalePermille       int
	SprinkleGravelPermille int
}

// palette holds the states the generator places.
type palette struct {
	air, stone, dirt, grass, sand, gravel, coal, iron block.BlockState
}

type Generator struct {
	cfg    Config
	height HeightMap
	p      palette
}

func NewGenerator(reg *block.Registry, hm HeightMap, cfg Config) (*Generator, error) {
	var p palette
	for _, r := range []struct {
		id  string
		dst *block.BlockState
	}{
		{block.AirID, &p.air},
		{"stone", &p.stone},
		{"dirt", &p.dirt},
		{"grass", &p.grass},
		{"sand", &p.sand},
		{"gravel", &p.gravel},
		{"coal_ore", &p.coal},
		{"iron_ore", &p.iron},
	} {
		s, err := block.NewState(reg, r.id)
		if err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
		*r.dst = s
	}
	if cfg.BiomeRegionSize <= 0 {
		cfg.BiomeRegionSize = 128
	}
	return &Generator{cfg: cfg, height: hm, p: p}, nil
}

// Generate fills one chunk. Uniform results come back in single mode.
func (g *Generator) Generate(pos store.ChunkPos) (*store.ChunkData, error) {
	ox, oy, oz := pos.Origin()
	b := store.NewBuilder(g.p.air)
	for x := 0; x < store.ChunkSize; x++ {
		for z := 0; z < store.ChunkSize; z++ {
			wx, wz := ox+x, oz+z
			h := g.height.Height(wx, wz)
			if h < oy {
				continue
			}
			biome := BiomeAt(g.cfg.Seed, wx, wz, g.cfg.BiomeRegionSize)
			for y := 0; y < store.ChunkSize; y++ {
				wy := oy + y
				if wy > h {
					break
				}
				if err := b.Set(x, y, z, g.cellAt(wx, wy, wz, h, biome)); err != nil {
					return nil, fmt.Errorf("generate %s: %w", pos, err)
				}
			}
		}
	}
	return b.Build(), nil
}

func (g *Generator) cellAt(wx, wy, wz, h int, biome Biome) block.BlockState {
	switch {
	case wy == h:
		if biome == Desert {
			return g.p.sand
		}
		return g.p.grass
	case wy >= h-3:
		if biome == Desert {
			return g.p.sand
		}
		return g.p.dirt
	}
	return g.stoneAt(wx, wy, wz, h)
}

func (g *Generator) stoneAt(wx, wy, wz, h int) block.BlockState {
	depth := h - wy
	band := int64(wy >> 3)
	switch {
	case depth > 16 && InCluster(g.cfg.Seed+102+band, wx, wz, 64, 3, ScalePermille(300, g.cfg.OreScalePermille)):
		if Hash3(g.cfg.Seed+202, wx, wy, wz)%1000 < 600 {
			return g.p.iron
		}
	case depth > 6 && InCluster(g.cfg.Seed+104+band, wx, wz, 48, 4, ScalePermille(450, g.cfg.OreScalePermille)):
		if Hash3(g.cfg.Seed+204, wx, wy, wz)%1000 < 700 {
			return g.p.coal
		}
	}
	roll := Hash3(g.cfg.Seed+999, wx, wy, wz) % 1000
	if roll < uint64(ClampPermille(g.cfg.SprinkleGravelPermille)) {
		return g.p.gravel
	}
	return g.p.stone
}
