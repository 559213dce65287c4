package mesh

import (
	"errors"
	"testing"

	"voxelforge.ai/internal/sim/catalogs"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

var cubeCorners = map[string][4][3]float32{
	"up":    {{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
	"down":  {{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
	"north": {{1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}},
	"south": {{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}},
	"east":  {{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}},
	"west":  {{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}},
}

func cubeDef() catalogs.ModelDef {
	d := catalogs.ModelDef{
		FullSides: []string{"up", "down", "north", "south", "east", "west"},
		Textures:  map[string]string{"side": "#all"},
	}
	for side, corners := range cubeCorners {
		f := catalogs.FaceDef{Type: "quad", Texture: "#side", CullMode: side}
		for _, c := range corners {
			f.Vertices = append(f.Vertices, catalogs.VertexDef{Pos: c})
		}
		d.Faces = append(d.Faces, f)
	}
	return d
}

func testDefs() map[string]catalogs.ModelDef {
	return map[string]catalogs.ModelDef{
		"cube":  cubeDef(),
		"stone": {Parent: "cube", Textures: map[string]string{"all": "stone.png"}},
		"glass": {Parent: "cube", FullSides: []string{}, Textures: map[string]string{"all": "glass.png"}},
	}
}

type fixture struct {
	stone, glass, lamp block.BlockState
	table              ModelTable
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := block.NewRegistry()
	for _, b := range []block.Block{
		{ID: block.AirID},
		{ID: "stone", Models: map[string]string{"": "stone"}},
		{ID: "glass", Models: map[string]string{"": "glass"}},
		{ID: "lamp"},
	} {
		if err := reg.Register(b); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	reg.Freeze()

	compiled, err := Compile(testDefs(), []string{"stone", "glass"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	table, err := BuildModelTable(reg, compiled.Models)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return fixture{
		stone: block.Unchecked("stone", nil),
		glass: block.Unchecked("glass", nil),
		lamp:  block.Unchecked("lamp", nil),
		table: table,
	}
}

func airNeighbors() Neighbors {
	var n Neighbors
	for i := range n {
		n[i] = store.Single(block.Air())
	}
	return n
}

func withBlock(t *testing.T, x, y, z int, s block.BlockState) *store.ChunkData {
	t.Helper()
	c := store.Single(block.Air())
	if _, err := c.SetBlock(x, y, z, s); err != nil {
		t.Fatalf("set: %v", err)
	}
	return c
}

func TestEmptyChunkHasNoMesh(t *testing.T) {
	f := newFixture(t)
	if m := BuildChunkMesh(store.Single(block.Air()), airNeighbors(), f.table); m != nil {
		t.Fatalf("expected nil mesh, got %d vertices", m.VertexCount())
	}
	// Dense storage whose only non-air cell was reverted is still empty of solids.
	c := withBlock(t, 1, 1, 1, f.stone)
	if _, err := c.SetBlock(1, 1, 1, block.Air()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if m := BuildChunkMesh(c, airNeighbors(), f.table); m != nil {
		t.Fatalf("expected nil mesh for all-air dense chunk")
	}
}

func TestLoneBlockEmitsAllFaces(t *testing.T) {
	f := newFixture(t)
	m := BuildChunkMesh(withBlock(t, 3, 4, 5, f.stone), airNeighbors(), f.table)
	if m == nil {
		t.Fatalf("nil mesh")
	}
	if m.VertexCount() != 24 || len(m.Indices) != 36 {
		t.Fatalf("vertices=%d indices=%d want 24/36", m.VertexCount(), len(m.Indices))
	}
	if got, want := m.VertexBufferSize(), uint64(24*BytesPerVertex); got != want {
		t.Fatalf("buffer size=%d want %d", got, want)
	}
	for _, p := range m.Positions {
		if p.X() < 3 || p.X() > 4 || p.Y() < 4 || p.Y() > 5 || p.Z() < 5 || p.Z() > 6 {
			t.Fatalf("vertex %v outside translated cell", p)
		}
	}
	for _, i := range m.Indices {
		if int(i) >= m.VertexCount() {
			t.Fatalf("index %d out of range", i)
		}
	}
}

func TestAdjacentFullBlocksHideSharedFaces(t *testing.T) {
	f := newFixture(t)
	c := withBlock(t, 3, 4, 5, f.stone)
	if _, err := c.SetBlock(3, 4, 6, f.stone); err != nil {
		t.Fatalf("set: %v", err)
	}
	m := BuildChunkMesh(c, airNeighbors(), f.table)
	if m.VertexCount() != 10*4 {
		t.Fatalf("vertices=%d want %d", m.VertexCount(), 40)
	}
}

func TestSolidChunkSurroundedBySolidsIsCulled(t *testing.T) {
	f := newFixture(t)
	var n Neighbors
	for i := range n {
		n[i] = store.Single(f.stone)
	}
	m := BuildChunkMesh(store.Single(f.stone), n, f.table)
	if m == nil {
		t.Fatalf("solid chunk should produce a (possibly empty) mesh")
	}
	if m.VertexCount() != 0 {
		t.Fatalf("vertices=%d want 0", m.VertexCount())
	}
}

// boundaryFaces meshes two chunks that touch across the +Z face and counts
// the faces lying on the shared plane.
func boundaryFaces(t *testing.T, f fixture, south, north block.BlockState) int {
	t.Helper()
	a := withBlock(t, 7, 7, store.ChunkSize-1, south)
	b := withBlock(t, 7, 7, 0, north)

	na := airNeighbors()
	na[0] = b // North
	nb := airNeighbors()
	nb[1] = a // South

	return facesOnPlane(BuildChunkMesh(a, na, f.table), store.ChunkSize) +
		facesOnPlane(BuildChunkMesh(b, nb, f.table), 0)
}

// facesOnPlane counts quads whose four vertices all lie on z == plane.
func facesOnPlane(m *Mesh, plane float32) int {
	count := 0
	for q := 0; q+4 <= m.VertexCount(); q += 4 {
		on := true
		for _, v := range m.Positions[q : q+4] {
			if v.Z() != plane {
				on = false
			}
		}
		if on {
			count++
		}
	}
	return count
}

func TestCrossChunkCulling(t *testing.T) {
	f := newFixture(t)
	if got := boundaryFaces(t, f, f.stone, f.stone); got != 0 {
		t.Fatalf("full|full boundary faces=%d want 0", got)
	}
	if got := boundaryFaces(t, f, f.stone, f.glass); got != 1 {
		t.Fatalf("full|non-full boundary faces=%d want 1", got)
	}
	if got := boundaryFaces(t, f, f.glass, f.glass); got != 2 {
		t.Fatalf("non-full|non-full boundary faces=%d want 2", got)
	}
}

func TestUnmodeledNeighborNeverCulls(t *testing.T) {
	f := newFixture(t)
	c := withBlock(t, 3, 4, 5, f.stone)
	if _, err := c.SetBlock(3, 5, 5, f.lamp); err != nil {
		t.Fatalf("set: %v", err)
	}
	m := BuildChunkMesh(c, airNeighbors(), f.table)
	if m.VertexCount() != 24 {
		t.Fatalf("vertices=%d want 24", m.VertexCount())
	}

	only := withBlock(t, 0, 0, 0, f.lamp)
	m = BuildChunkMesh(only, airNeighbors(), f.table)
	if m == nil || m.VertexCount() != 0 {
		t.Fatalf("unmodeled solid should give an empty non-nil mesh")
	}
}

func TestMissingNeighborDoesNotCull(t *testing.T) {
	f := newFixture(t)
	m := BuildChunkMesh(withBlock(t, 0, 0, 0, f.stone), Neighbors{}, f.table)
	if m.VertexCount() != 24 {
		t.Fatalf("vertices=%d want 24", m.VertexCount())
	}
}

func TestCompileInheritance(t *testing.T) {
	c, err := Compile(testDefs(), []string{"stone", "glass"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(c.Textures) != 2 || c.Textures[0] != "glass.png" || c.Textures[1] != "stone.png" {
		t.Fatalf("textures=%v", c.Textures)
	}
	stone := c.Models["stone"]
	if len(stone.Faces) != 6 || stone.FullSides != 0x3f {
		t.Fatalf("stone faces=%d full=%#x", len(stone.Faces), stone.FullSides)
	}
	if stone.Faces[0].TextureIndex != 1 {
		t.Fatalf("stone texture index=%d", stone.Faces[0].TextureIndex)
	}
	glass := c.Models["glass"]
	if glass.FullSides != 0 {
		t.Fatalf("explicit empty full_sides should clear the parent mask, got %#x", glass.FullSides)
	}
	for _, d := range block.Directions {
		if glass.IsFull(d) || !stone.IsFull(d) {
			t.Fatalf("IsFull mismatch on %s", d)
		}
	}
	if _, ok := c.Models["cube"]; ok {
		t.Fatalf("unreferenced parent should not be compiled")
	}
}

func TestCompileErrors(t *testing.T) {
	defs := map[string]catalogs.ModelDef{
		"a":      {Parent: "b"},
		"b":      {Parent: "a"},
		"notex":  {Faces: []catalogs.FaceDef{{Type: "triangle", Texture: "missing", Vertices: make([]catalogs.VertexDef, 3)}}},
		"badq":   {Textures: map[string]string{"t": "t.png"}, Faces: []catalogs.FaceDef{{Type: "quad", Texture: "t", Vertices: make([]catalogs.VertexDef, 6)}}},
		"badtri": {Textures: map[string]string{"t": "t.png"}, Faces: []catalogs.FaceDef{{Type: "triangle", Texture: "t", Vertices: make([]catalogs.VertexDef, 4)}}},
		"loop":   {Textures: map[string]string{"x": "#y", "y": "#x"}, Faces: []catalogs.FaceDef{{Type: "triangle", Texture: "#x", Vertices: make([]catalogs.VertexDef, 3)}}},
	}
	cases := []struct {
		name string
		want error
	}{
		{"a", ErrCircularDependency},
		{"notex", ErrTextureNotFound},
		{"badq", ErrInvalidFace},
		{"badtri", ErrInvalidFace},
		{"loop", ErrTextureNotFound},
		{"nope", ErrModelNotFound},
	}
	for _, tc := range cases {
		if _, err := Compile(defs, []string{tc.name}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
}

func TestQuadIndicesPerQuad(t *testing.T) {
	defs := map[string]catalogs.ModelDef{
		"two": {
			Textures: map[string]string{"t": "t.png"},
			Faces:    []catalogs.FaceDef{{Type: "quad", Texture: "t", Vertices: make([]catalogs.VertexDef, 8)}},
		},
	}
	c, err := Compile(defs, []string{"two"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := []uint32{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7}
	got := c.Models["two"].Faces[0].Indices
	if len(got) != len(want) {
		t.Fatalf("indices=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices=%v want %v", got, want)
		}
	}
}

func TestModelCacheSnapshot(t *testing.T) {
	f := newFixture(t)
	cache := NewModelCache(f.table)
	snap := cache.Load()
	cache.Store(ModelTable{})
	if _, ok := snap[f.stone]; !ok {
		t.Fatalf("old snapshot lost its entries")
	}
	if _, ok := cache.Lookup(f.stone); ok {
		t.Fatalf("new table should be empty")
	}
	var nilCache *ModelCache
	if nilCache.Load() != nil {
		t.Fatalf("nil cache should load nil")
	}
}

func TestBuildModelTableUnknownModel(t *testing.T) {
	reg := block.NewRegistry()
	if err := reg.Register(block.Block{ID: "x", Models: map[string]string{"": "ghost"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := BuildModelTable(reg, map[string]*Model{}); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err=%v", err)
	}
}
