package mesh

import (
	"fmt"

	"go.uber.org/atomic"

	"voxelforge.ai/internal/sim/world/block"
)

// ModelTable maps every modeled block state to its compiled model. A table
// is immutable once published.
type ModelTable map[block.BlockState]*Model

// BuildModelTable binds each state of each registered block to the model
// its block definition selects. States without a model are left out.
func BuildModelTable(reg *block.Registry, models map[string]*Model) (ModelTable, error) {
	t := ModelTable{}
	for _, id := range reg.IDs() {
		b, _ := reg.Lookup(id)
		for _, s := range b.AllStates() {
			name, ok := b.ModelFor(s)
			if !ok {
				continue
			}
			m, ok := models[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s (used by %s)", ErrModelNotFound, name, s)
			}
			t[s] = m
		}
	}
	return t, nil
}

// ModelCache publishes the current model table. Readers take a snapshot
// with Load and keep using it even if a newer table is stored meanwhile.
type ModelCache struct {
	p atomic.Pointer[ModelTable]
}

func NewModelCache(t ModelTable) *ModelCache {
	c := &ModelCache{}
	c.Store(t)
	return c
}

func (c *ModelCache) Load() ModelTable {
	if c == nil {
		return nil
	}
	if t := c.p.Load(); t != nil {
		return *t
	}
	return nil
}

func (c *ModelCache) Store(t ModelTable) { c.p.Store(&t) }

func (c *ModelCache) Lookup(s block.BlockState) (*Model, bool) {
	m, ok := c.Load()[s]
	return m, ok
}
