package store

import (
	"fmt"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/logic/mathx"
)

const (
	ChunkSize      = 32
	BlocksPerChunk = ChunkSize * ChunkSize * ChunkSize
)

// ChunkPos addresses a chunk in chunk units.
type ChunkPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// LocalPos addresses a cell inside one chunk, each axis in [0, ChunkSize).
type LocalPos struct {
	X, Y, Z int
}

func (p ChunkPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

func (p ChunkPos) Add(dx, dy, dz int) ChunkPos {
	return ChunkPos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

func (p ChunkPos) Neighbor(d block.Direction) ChunkPos {
	return p.Add(d.Offset())
}

// Neighbors returns the six face neighbors in block.Directions order.
func (p ChunkPos) Neighbors() [6]ChunkPos {
	var out [6]ChunkPos
	for i, d := range block.Directions {
		out[i] = p.Neighbor(d)
	}
	return out
}

// Origin is the world coordinate of the chunk's (0,0,0) cell.
func (p ChunkPos) Origin() (x, y, z int) {
	return p.X * ChunkSize, p.Y * ChunkSize, p.Z * ChunkSize
}

func LessPos(a, b ChunkPos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// SplitWorld converts a world cell coordinate into its chunk and local coordinate.
func SplitWorld(x, y, z int) (ChunkPos, LocalPos) {
	cp := ChunkPos{
		X: mathx.FloorDiv(x, ChunkSize),
		Y: mathx.FloorDiv(y, ChunkSize),
		Z: mathx.FloorDiv(z, ChunkSize),
	}
	lp := LocalPos{
		X: mathx.Mod(x, ChunkSize),
		Y: mathx.Mod(y, ChunkSize),
		Z: mathx.Mod(z, ChunkSize),
	}
	return cp, lp
}

func InBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}

// Index linearizes a local coordinate as y*SIZE^2 + x*SIZE + z.
func Index(x, y, z int) int {
	return y*ChunkSize*ChunkSize + x*ChunkSize + z
}

func IndexToXYZ(i int) (x, y, z int) {
	return (i / ChunkSize) % ChunkSize, i / (ChunkSize * ChunkSize), i % ChunkSize
}
