package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelforge.ai/internal/sim/world/block"
)

type Catalogs struct {
	Blocks BlockCatalog
	Models ModelCatalog
}

type BlockCatalog struct {
	IDs        []string
	Defs       map[string]BlockDef
	DefsDigest string
}

type BlockDef struct {
	ID           string              `json:"id"`
	Hardness     float64             `json:"hardness"`
	States       map[string][]string `json:"states,omitempty"`
	DefaultState map[string]string   `json:"default_state,omitempty"`
	// Models maps a canonical state string ("k=v,k=v") to a model name; "" is the fallback.
	Models map[string]string `json:"models,omitempty"`
}

type ModelCatalog struct {
	ByName map[string]ModelDef
	Digest string
}

type ModelDef struct {
	Parent    string            `json:"parent,omitempty"`
	Faces     []FaceDef         `json:"faces,omitempty"`
	FullSides []string          `json:"full_sides,omitempty"`
	Textures  map[string]string `json:"textures,omitempty"`
}

type FaceDef struct {
	Type     string      `json:"type"` // "quad" or "triangle"
	Vertices []VertexDef `json:"vertices"`
	Normal   [3]float32  `json:"normal"`
	Texture  string      `json:"texture"`
	CullMode string      `json:"cull_mode,omitempty"`
}

type VertexDef struct {
	Pos [3]float32 `json:"pos"`
	UV  [2]float32 `json:"uv"`
}

// Load reads blocks.json and models/ from configDir. When schemaDir is not
// empty every file is validated against the JSON schemas found there first.
func Load(configDir, schemaDir string) (*Catalogs, error) {
	var c Catalogs

	var v *validators
	if schemaDir != "" {
		var err error
		if v, err = compileValidators(schemaDir); err != nil {
			return nil, err
		}
	}

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), v, &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadModels(filepath.Join(configDir, "models"), v, &c.Models); err != nil {
		return nil, err
	}
	return &c, nil
}

// Registry builds a frozen block registry from the catalog.
func (c *Catalogs) Registry() (*block.Registry, error) {
	reg := block.NewRegistry()
	for _, id := range c.Blocks.IDs {
		d := c.Blocks.Defs[id]
		if err := reg.Register(block.Block{
			ID:           d.ID,
			Hardness:     d.Hardness,
			States:       d.States,
			DefaultState: d.DefaultState,
			Models:       d.Models,
		}); err != nil {
			return nil, fmt.Errorf("blocks.json: %w", err)
		}
	}
	reg.Freeze()
	return reg, nil
}

// ReferencedModels lists the model names used by any block, sorted.
func (c *Catalogs) ReferencedModels() []string {
	seen := map[string]bool{}
	for _, d := range c.Blocks.Defs {
		for _, m := range d.Models {
			seen[m] = true
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type validators struct {
	blocks *jsonschema.Schema
	model  *jsonschema.Schema
}

func compileValidators(schemaDir string) (*validators, error) {
	blocks, err := jsonschema.Compile(filepath.Join(schemaDir, "blocks.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile blocks schema: %w", err)
	}
	model, err := jsonschema.Compile(filepath.Join(schemaDir, "model.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile model schema: %w", err)
	}
	return &validators{blocks: blocks, model: model}, nil
}

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func loadBlocks(path string, v *validators, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	if v != nil {
		if err := validateRaw(v.blocks, raw); err != nil {
			return fmt.Errorf("blocks.json: %w", err)
		}
	}

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}
	if _, ok := out.Defs[block.AirID]; !ok {
		return fmt.Errorf("blocks.json: missing %s", block.AirID)
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.IDs = ids
	return nil
}

// loadModels reads every *.json below dir. A model's name is its path
// relative to dir without the extension, using forward slashes.
func loadModels(dir string, v *validators, out *ModelCatalog) error {
	out.ByName = map[string]ModelDef{}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".json")

		if v != nil {
			if err := validateRaw(v.model, b); err != nil {
				return fmt.Errorf("model %s: %w", name, err)
			}
		}
		var m ModelDef
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("model %s: %w", name, err)
		}
		out.ByName[name] = m
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}
