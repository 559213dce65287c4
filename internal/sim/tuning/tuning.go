package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/terrain/gen"
)

type Tuning struct {
	TickRateHz        int   `yaml:"tick_rate_hz"`
	UploadBudgetBytes int64 `yaml:"upload_budget_bytes"`
	MeshWarnMs        int   `yaml:"mesh_warn_ms"`
	Workers           int   `yaml:"workers"`

	LoadRadius     int     `yaml:"load_radius"`
	LoadsPerSecond float64 `yaml:"loads_per_second"`
	LoadBurst      int     `yaml:"load_burst"`

	PersistEdits       bool `yaml:"persist_edits"`
	SnapshotEveryTicks int  `yaml:"snapshot_every_ticks"`

	Worldgen Worldgen `yaml:"worldgen"`
}

type Worldgen struct {
	Provider     string  `yaml:"provider"`
	Seed         int64   `yaml:"seed"`
	BaseHeight   int     `yaml:"base_height"`
	Amplitude    float64 `yaml:"amplitude"`
	Period       float64 `yaml:"period"`
	Scale        float64 `yaml:"scale"`
	CacheColumns int     `yaml:"cache_columns"`

	BiomeRegionSize        int `yaml:"biome_region_size"`
	OreScalePermille       int `yaml:"ore_scale_permille"`
	SprinkleGravelPermille int `yaml:"sprinkle_gravel_permille"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		UploadBudgetBytes:  world.MiBPerTick,
		MeshWarnMs:         10,
		LoadRadius:         5,
		LoadsPerSecond:     400,
		LoadBurst:          64,
		PersistEdits:       true,
		SnapshotEveryTicks: 6000,
		Worldgen: Worldgen{
			Provider:         "noise",
			Seed:             1337,
			BaseHeight:       0,
			Amplitude:        24,
			Period:           96,
			Scale:            128,
			CacheColumns:     1 << 16,
			BiomeRegionSize:  128,
			OreScalePermille: 1000,
		},
	}
}

// Load reads path over Defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadOrDefault is Load, falling back to Defaults when path does not exist.
func LoadOrDefault(path string) (Tuning, error) {
	t, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return t, err
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0 || t.TickRateHz > 1000:
		return fmt.Errorf("tick_rate_hz %d out of range", t.TickRateHz)
	case t.UploadBudgetBytes <= 0:
		return fmt.Errorf("upload_budget_bytes must be positive")
	case t.Workers < 0:
		return fmt.Errorf("workers must be >= 0")
	case t.LoadRadius < 0 || t.LoadRadius > world.MaxLoadRadius:
		return fmt.Errorf("load_radius %d out of range [0,%d]", t.LoadRadius, world.MaxLoadRadius)
	case t.LoadsPerSecond < 0 || t.LoadBurst < 0:
		return fmt.Errorf("loads_per_second and load_burst must be >= 0")
	case t.SnapshotEveryTicks < 0:
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	switch t.Worldgen.Provider {
	case "flat", "sine", "noise":
	default:
		return fmt.Errorf("worldgen.provider %q is not flat, sine or noise", t.Worldgen.Provider)
	}
	if t.Worldgen.Provider == "sine" && t.Worldgen.Period <= 0 {
		return fmt.Errorf("worldgen.period must be positive")
	}
	if t.Worldgen.Provider == "noise" && t.Worldgen.Scale <= 0 {
		return fmt.Errorf("worldgen.scale must be positive")
	}
	return nil
}

func (t Tuning) WorldConfig() world.Config {
	return world.Config{
		TickRateHz:        t.TickRateHz,
		UploadBudgetBytes: t.UploadBudgetBytes,
		MeshWarnAfter:     time.Duration(t.MeshWarnMs) * time.Millisecond,
	}
}

func (t Tuning) GenConfig() gen.Config {
	w := t.Worldgen
	return gen.Config{
		Provider:               w.Provider,
		Seed:                   w.Seed,
		BaseHeight:             w.BaseHeight,
		Amplitude:              w.Amplitude,
		Period:                 w.Period,
		Scale:                  w.Scale,
		CacheColumns:           w.CacheColumns,
		BiomeRegionSize:        w.BiomeRegionSize,
		OreScalePermille:       w.OreScalePermille,
		SprinkleGravelPermille: w.SprinkleGravelPermille,
	}
}

// Digest identifies the values in effect, for snapshots and logs.
func (t Tuning) Digest() string {
	b, _ := yaml.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
