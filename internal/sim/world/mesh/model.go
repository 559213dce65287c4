package mesh

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"voxelforge.ai/internal/sim/catalogs"
	"voxelforge.ai/internal/sim/world/block"
)

var (
	ErrCircularDependency = errors.New("circular model dependency")
	ErrTextureNotFound    = errors.New("texture key not found")
	ErrInvalidFace        = errors.New("invalid face")
	ErrModelNotFound      = errors.New("model not found")
)

type Vertex struct {
	Pos mgl32.Vec3
	UV  mgl32.Vec2
}

// Face is one compiled piece of block geometry. Indices are local to the face.
type Face struct {
	Vertices     []Vertex
	Normal       mgl32.Vec3
	Indices      []uint32
	TextureIndex uint32
	// CullMode names the side whose neighbor may hide this face; nil faces
	// are always emitted.
	CullMode *block.Direction
}

type Model struct {
	Faces []Face
	// FullSides has bit 1<<Direction set for every side that is opaque and
	// flush with the cell boundary.
	FullSides uint8
}

func (m *Model) IsFull(d block.Direction) bool {
	return m != nil && m.FullSides&(1<<uint(d)) != 0
}

// Compiled holds the compiled models by name and the texture array layout.
type Compiled struct {
	Models map[string]*Model
	// Textures lists texture paths by array index.
	Textures []string
}

func (c *Compiled) TextureIndex(path string) (uint32, bool) {
	i := sort.SearchStrings(c.Textures, path)
	if i < len(c.Textures) && c.Textures[i] == path {
		return uint32(i), true
	}
	return 0, false
}

type pendingFace struct {
	def  catalogs.FaceDef
	path string
}

type pendingModel struct {
	faces []pendingFace
	full  uint8
}

// Compile resolves the named models and everything they inherit from.
// Texture array indices follow the sorted order of all referenced paths.
func Compile(defs map[string]catalogs.ModelDef, names []string) (*Compiled, error) {
	pending := make(map[string]pendingModel, len(names))
	paths := map[string]struct{}{}
	for _, name := range names {
		if _, ok := pending[name]; ok {
			continue
		}
		visited := map[string]bool{name: true}
		pm, err := resolve(defs, name, visited, map[string]string{})
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		pending[name] = pm
		for _, f := range pm.faces {
			paths[f.path] = struct{}{}
		}
	}

	out := &Compiled{Models: make(map[string]*Model, len(pending))}
	for p := range paths {
		out.Textures = append(out.Textures, p)
	}
	sort.Strings(out.Textures)

	for name, pm := range pending {
		m := &Model{FullSides: pm.full, Faces: make([]Face, 0, len(pm.faces))}
		for _, pf := range pm.faces {
			ti, _ := out.TextureIndex(pf.path)
			f, err := compileFace(pf.def, ti)
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", name, err)
			}
			m.Faces = append(m.Faces, f)
		}
		out.Models[name] = m
	}
	return out, nil
}

// resolve walks the parent chain. Texture keys accumulate child first so a
// child's entry overrides the parent's, including for faces the parent defines.
func resolve(defs map[string]catalogs.ModelDef, name string, visited map[string]bool, textures map[string]string) (pendingModel, error) {
	def, ok := defs[name]
	if !ok {
		return pendingModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	for k, v := range def.Textures {
		if _, ok := textures[k]; !ok {
			textures[k] = v
		}
	}

	var pm pendingModel
	if def.Parent != "" {
		if visited[def.Parent] {
			return pendingModel{}, fmt.Errorf("%w: %s", ErrCircularDependency, def.Parent)
		}
		visited[def.Parent] = true
		parent, err := resolve(defs, def.Parent, visited, textures)
		if err != nil {
			return pendingModel{}, err
		}
		pm = parent
	}

	for _, fd := range def.Faces {
		path, err := lookupTexture(fd.Texture, textures)
		if err != nil {
			return pendingModel{}, err
		}
		pm.faces = append(pm.faces, pendingFace{def: fd, path: path})
	}

	if def.FullSides != nil {
		pm.full = 0
		for _, s := range def.FullSides {
			d, err := block.ParseDirection(s)
			if err != nil {
				return pendingModel{}, err
			}
			pm.full |= 1 << uint(d)
		}
	}
	return pm, nil
}

// lookupTexture follows "#key" references until it reaches a path.
func lookupTexture(ref string, textures map[string]string) (string, error) {
	key := strings.TrimPrefix(ref, "#")
	for hops := 0; hops <= len(textures); hops++ {
		v, ok := textures[key]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrTextureNotFound, key)
		}
		if !strings.HasPrefix(v, "#") {
			return v, nil
		}
		key = v[1:]
	}
	return "", fmt.Errorf("%w: %s (reference loop)", ErrTextureNotFound, ref)
}

func compileFace(fd catalogs.FaceDef, texture uint32) (Face, error) {
	f := Face{
		Normal:       mgl32.Vec3(fd.Normal),
		TextureIndex: texture,
		Vertices:     make([]Vertex, len(fd.Vertices)),
	}
	for i, v := range fd.Vertices {
		f.Vertices[i] = Vertex{Pos: mgl32.Vec3(v.Pos), UV: mgl32.Vec2(v.UV)}
	}

	n := len(fd.Vertices)
	switch fd.Type {
	case "quad":
		if n%4 != 0 {
			return Face{}, fmt.Errorf("%w: quad needs a multiple of 4 vertices, got %d", ErrInvalidFace, n)
		}
		f.Indices = make([]uint32, 0, n/4*6)
		for q := 0; q < n/4; q++ {
			b := uint32(4 * q)
			f.Indices = append(f.Indices, b, b+1, b+2, b, b+2, b+3)
		}
	case "triangle":
		if n%3 != 0 {
			return Face{}, fmt.Errorf("%w: triangle needs a multiple of 3 vertices, got %d", ErrInvalidFace, n)
		}
		f.Indices = make([]uint32, n)
		for i := range f.Indices {
			f.Indices[i] = uint32(i)
		}
	default:
		return Face{}, fmt.Errorf("%w: unknown face type %q", ErrInvalidFace, fd.Type)
	}

	if fd.CullMode != "" {
		d, err := block.ParseDirection(fd.CullMode)
		if err != nil {
			return Face{}, err
		}
		f.CullMode = &d
	}
	return f, nil
}
