package world

import "time"

// MiBPerTick is the default per-tick upload budget in vertex-buffer bytes.
const MiBPerTick = 1 << 20

type Config struct {
	TickRateHz int
	// UploadBudgetBytes bounds the vertex-buffer bytes uploaded per tick.
	UploadBudgetBytes int64
	// MeshWarnAfter logs meshing tasks slower than this.
	MeshWarnAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.UploadBudgetBytes <= 0 {
		c.UploadBudgetBytes = MiBPerTick
	}
	if c.MeshWarnAfter <= 0 {
		c.MeshWarnAfter = 10 * time.Millisecond
	}
}
