package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"voxelforge.ai/internal/sim/world/block"
)

func repoPath(parts ...string) string {
	return filepath.Join(append([]string{"..", "..", ".."}, parts...)...)
}

func TestLoadRepoConfigs(t *testing.T) {
	c, err := Load(repoPath("configs"), repoPath("schemas"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.Blocks.Defs["air"]; !ok {
		t.Fatalf("air missing")
	}
	if c.Blocks.DefsDigest == "" || c.Models.Digest == "" {
		t.Fatalf("digests not set")
	}
	if _, ok := c.Models.ByName["block/cube"]; !ok {
		t.Fatalf("block/cube missing, have %d models", len(c.Models.ByName))
	}
	for _, m := range c.ReferencedModels() {
		if _, ok := c.Models.ByName[m]; !ok {
			t.Fatalf("referenced model %s not loaded", m)
		}
	}

	reg, err := c.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if reg.Len() != len(c.Blocks.IDs) {
		t.Fatalf("registry len=%d want %d", reg.Len(), len(c.Blocks.IDs))
	}
	s, err := block.NewState(reg, "furnace")
	if err != nil {
		t.Fatalf("furnace: %v", err)
	}
	if s.Props()["facing"] != "north" {
		t.Fatalf("default facing=%q", s.Props()["facing"])
	}
	if err := reg.Register(block.Block{ID: "late"}); err == nil {
		t.Fatalf("expected frozen registry")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadRequiresAir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[{"id":"stone"}]`)
	if _, err := Load(dir, ""); err == nil {
		t.Fatalf("expected error without air")
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[{"id":"air"},{"id":"air"}]`)
	if _, err := Load(dir, ""); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestSchemaRejectsBadFaceType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[{"id":"air"}]`)
	writeFile(t, filepath.Join(dir, "models", "bad.json"),
		`{"faces":[{"type":"hexagon","vertices":[],"texture":"#a"}]}`)
	if _, err := Load(dir, repoPath("schemas")); err == nil {
		t.Fatalf("expected schema error")
	}
	// Without schemas the file still parses.
	c, err := Load(dir, "")
	if err != nil {
		t.Fatalf("load without schemas: %v", err)
	}
	if c.Models.ByName["bad"].Faces[0].Type != "hexagon" {
		t.Fatalf("unexpected model %+v", c.Models.ByName["bad"])
	}
}

func TestModelNamesUseSlashes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocks.json"), `[{"id":"air"}]`)
	writeFile(t, filepath.Join(dir, "models", "block", "x.json"), `{"full_sides":[]}`)
	c, err := Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, ok := c.Models.ByName["block/x"]
	if !ok {
		t.Fatalf("block/x missing")
	}
	if m.FullSides == nil || len(m.FullSides) != 0 {
		t.Fatalf("explicit empty full_sides should be non-nil and empty: %#v", m.FullSides)
	}
}
