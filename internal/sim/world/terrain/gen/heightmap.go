package gen

import (
	"fmt"
	"math"
	"sync"

	"github.com/ojrac/opensimplex-go"
)

// HeightMap gives the surface height of a world column.
type HeightMap interface {
	Height(x, z int) int
}

type FlatHeightMap struct {
	Level int
}

func (f FlatHeightMap) Height(x, z int) int { return f.Level }

// SineHeightMap rolls gently along both horizontal axes.
type SineHeightMap struct {
	Base      int
	Amplitude float64
	Period    float64
}

func (s SineHeightMap) Height(x, z int) int {
	period := s.Period
	if period <= 0 {
		period = 64
	}
	k := 2 * math.Pi / period
	v := math.Sin(float64(x)*k) + math.Cos(float64(z)*k)
	return s.Base + int(math.Round(v*s.Amplitude/2))
}

// NoiseHeightMap samples 2D OpenSimplex noise.
type NoiseHeightMap struct {
	Base      int
	Amplitude float64
	Scale     float64

	noise opensimplex.Noise
}

func NewNoiseHeightMap(seed int64, base int, amplitude, scale float64) *NoiseHeightMap {
	if scale <= 0 {
		scale = 96
	}
	return &NoiseHeightMap{
		Base:      base,
		Amplitude: amplitude,
		Scale:     scale,
		noise:     opensimplex.New(seed),
	}
}

func (n *NoiseHeightMap) Height(x, z int) int {
	v := n.noise.Eval2(float64(x)/n.Scale, float64(z)/n.Scale)
	// second octave for detail
	v += 0.5 * n.noise.Eval2(float64(x)/(n.Scale/4), float64(z)/(n.Scale/4))
	return n.Base + int(math.Round(v*n.Amplitude/1.5))
}

// CachedHeightMap memoizes column heights; every chunk stacked over a
// column samples the same values.
type CachedHeightMap struct {
	inner HeightMap

	mu      sync.RWMutex
	columns map[[2]int]int
	max     int
}

// NewCachedHeightMap wraps inner; max bounds the number of cached columns
// (0 = unbounded). When full the cache is dropped wholesale.
func NewCachedHeightMap(inner HeightMap, max int) *CachedHeightMap {
	return &CachedHeightMap{inner: inner, columns: map[[2]int]int{}, max: max}
}

func (c *CachedHeightMap) Height(x, z int) int {
	k := [2]int{x, z}
	c.mu.RLock()
	h, ok := c.columns[k]
	c.mu.RUnlock()
	if ok {
		return h
	}
	h = c.inner.Height(x, z)
	c.mu.Lock()
	if c.max > 0 && len(c.columns) >= c.max {
		c.columns = map[[2]int]int{}
	}
	c.columns[k] = h
	c.mu.Unlock()
	return h
}

func (c *CachedHeightMap) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.columns)
}

// NewHeightMap builds the provider named by cfg.Provider.
func NewHeightMap(cfg Config) (HeightMap, error) {
	var hm HeightMap
	switch cfg.Provider {
	case "", "flat":
		hm = FlatHeightMap{Level: cfg.BaseHeight}
	case "sine":
		hm = SineHeightMap{Base: cfg.BaseHeight, Amplitude: cfg.Amplitude, Period: cfg.Period}
	case "noise":
		hm = NewNoiseHeightMap(cfg.Seed, cfg.BaseHeight, cfg.Amplitude, cfg.Scale)
	default:
		return nil, fmt.Errorf("unknown height map provider %q", cfg.Provider)
	}
	return NewCachedHeightMap(hm, cfg.CacheColumns), nil
}
