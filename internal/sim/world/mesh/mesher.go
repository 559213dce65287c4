package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// BytesPerVertex is the upload size of one vertex: position, uv, normal and
// texture index.
const BytesPerVertex = 12 + 8 + 12 + 4

// Mesh is a triangle list in chunk-local coordinates.
type Mesh struct {
	Positions  []mgl32.Vec3
	UVs        []mgl32.Vec2
	Normals    []mgl32.Vec3
	TextureIDs []uint32
	Indices    []uint32
}

func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Positions)
}

func (m *Mesh) VertexBufferSize() uint64 {
	return uint64(m.VertexCount()) * BytesPerVertex
}

func (m *Mesh) appendFace(f *Face, offset mgl32.Vec3) {
	base := uint32(len(m.Positions))
	for _, v := range f.Vertices {
		m.Positions = append(m.Positions, v.Pos.Add(offset))
		m.UVs = append(m.UVs, v.UV)
		m.Normals = append(m.Normals, f.Normal)
		m.TextureIDs = append(m.TextureIDs, f.TextureIndex)
	}
	for _, i := range f.Indices {
		m.Indices = append(m.Indices, base+i)
	}
}

// Neighbors holds the six face-adjacent chunks in block.Directions order.
type Neighbors [6]*store.ChunkData

// cullBit is the should-cull mask bit of a direction: its position in
// block.Directions.
var cullBit = func() (bits [6]uint8) {
	for i, d := range block.Directions {
		bits[d] = 1 << uint(i)
	}
	return bits
}()

// paletteModels resolves the model of every palette entry once so the cell
// loop indexes a slice instead of hashing states.
func paletteModels(d *store.ChunkData, models ModelTable) []*Model {
	if d == nil {
		return nil
	}
	out := make([]*Model, d.PaletteLen())
	for i := range out {
		e, _ := d.Palette(i)
		if e.IsFree() {
			continue
		}
		out[i] = models[e.Block]
	}
	return out
}

// BuildChunkMesh meshes one chunk against its neighbors. It returns nil when
// the chunk holds no non-air cell. A side is hidden only when the adjacent
// cell's model is full on the opposite side; a missing neighbor or an
// unmodeled cell never hides anything.
func BuildChunkMesh(c *store.ChunkData, n Neighbors, models ModelTable) *Mesh {
	if c == nil || c.IsEmpty() {
		return nil
	}

	var lut [7][]*Model
	lut[0] = paletteModels(c, models)
	for i, nd := range n {
		lut[i+1] = paletteModels(nd, models)
	}
	air := make([]bool, c.PaletteLen())
	for i := range air {
		e, _ := c.Palette(i)
		air[i] = e.Block.IsAir()
	}

	var (
		m       Mesh
		visited bool
	)
	for i := 0; i < store.BlocksPerChunk; i++ {
		idx := c.IndexAt(i)
		if air[idx] {
			continue
		}
		visited = true
		model := lut[0][idx]
		if model == nil {
			continue
		}
		x, y, z := store.IndexToXYZ(i)
		mask := cullMask(c, &n, &lut, x, y, z)
		offset := mgl32.Vec3{float32(x), float32(y), float32(z)}
		for fi := range model.Faces {
			f := &model.Faces[fi]
			if f.CullMode != nil && mask&cullBit[*f.CullMode] != 0 {
				continue
			}
			m.appendFace(f, offset)
		}
	}
	if !visited {
		return nil
	}
	return &m
}

func cullMask(c *store.ChunkData, n *Neighbors, lut *[7][]*Model, x, y, z int) uint8 {
	var mask uint8
	for k, d := range block.Directions {
		dx, dy, dz := d.Offset()
		nx, ny, nz := x+dx, y+dy, z+dz
		src, q := c, 0
		if !store.InBounds(nx, ny, nz) {
			src, q = n[k], k+1
			nx, ny, nz = wrap(nx), wrap(ny), wrap(nz)
		}
		if src == nil {
			continue
		}
		pi := src.IndexAt(store.Index(nx, ny, nz))
		if pi >= len(lut[q]) {
			continue
		}
		if lut[q][pi].IsFull(d.Opposite()) {
			mask |= 1 << uint(k)
		}
	}
	return mask
}

func wrap(v int) int {
	switch {
	case v < 0:
		return store.ChunkSize - 1
	case v >= store.ChunkSize:
		return 0
	default:
		return v
	}
}
