package gen

import "voxelforge.ai/internal/sim/world/logic/mathx"

func Hash2(seed int64, x, z int) uint64 {
	return mathx.Hash2(seed, x, z)
}

func Hash3(seed int64, x, y, z int) uint64 {
	return mathx.Hash3(seed, x, y, z)
}

type Biome string

const (
	Plains Biome = "PLAINS"
	Forest Biome = "FOREST"
	Desert Biome = "DESERT"
)

func BiomeFrom(noise uint64) Biome {
	switch noise % 3 {
	case 0:
		return Plains
	case 1:
		return Forest
	default:
		return Desert
	}
}

func BiomeAt(seed int64, x, z, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	rz := mathx.FloorDiv(z, regionSize)
	return BiomeFrom(Hash2(seed, rx, rz))
}

func ClampPermille(v int) int {
	return mathx.ClampInt(v, 0, 1000)
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// InCluster reports whether (x,z) lies within radius of a cluster center.
// Centers are placed at most one per grid cell, with probability probPermille.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}
