package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Worldgen.Provider == "" {
		t.Fatalf("tuning=%+v", tu)
	}
	if got := tu.WorldConfig().MeshWarnAfter; got != 10*time.Millisecond {
		t.Fatalf("mesh warn=%v", got)
	}
}

func TestOmittedKeysKeepDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("load_radius: 2\nworldgen:\n  provider: flat\n  base_height: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Defaults()
	if tu.LoadRadius != 2 || tu.TickRateHz != d.TickRateHz || tu.UploadBudgetBytes != d.UploadBudgetBytes {
		t.Fatalf("tuning=%+v", tu)
	}
	if g := tu.GenConfig(); g.Provider != "flat" || g.BaseHeight != 4 || g.Seed != d.Worldgen.Seed {
		t.Fatalf("gen=%+v", g)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"tick rate":  func(t *Tuning) { t.TickRateHz = 0 },
		"budget":     func(t *Tuning) { t.UploadBudgetBytes = -1 },
		"radius":     func(t *Tuning) { t.LoadRadius = 99 },
		"provider":   func(t *Tuning) { t.Worldgen.Provider = "perlin" },
		"sine":       func(t *Tuning) { t.Worldgen.Provider = "sine"; t.Worldgen.Period = 0 },
		"workers":    func(t *Tuning) { t.Workers = -2 },
		"snapshots":  func(t *Tuning) { t.SnapshotEveryTicks = -1 },
		"load burst": func(t *Tuning) { t.LoadBurst = -1 },
	}
	for name, mut := range cases {
		tu := Defaults()
		mut(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	tu, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || tu.Digest() != Defaults().Digest() {
		t.Fatalf("err=%v", err)
	}

	p := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(p, []byte("tick_rate_hz: [1,2]\n"), 0o644)
	if _, err := LoadOrDefault(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
