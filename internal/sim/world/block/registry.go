package block

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicate = errors.New("already registered")
	ErrFrozen    = errors.New("registry is frozen")
)

// Block is the static metadata of one block type.
type Block struct {
	ID       string
	Hardness float64
	// States maps each property to its allowed values.
	States       map[string][]string
	DefaultState map[string]string
	// Models maps a canonical property string to a model name. The "" key is
	// the fallback used for any state without its own entry.
	Models map[string]string
}

func (b *Block) ValidateState(props map[string]string) error {
	for k, v := range props {
		allowed, ok := b.States[k]
		if !ok {
			return fmt.Errorf("%w: %s has no property %q", ErrInvalidState, b.ID, k)
		}
		found := false
		for _, a := range allowed {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s.%s=%q", ErrInvalidState, b.ID, k, v)
		}
	}
	return nil
}

// reservedChars delimit the canonical property string, so ids, property
// names and values may not contain them.
const reservedChars = ",=[] "

func (b *Block) checkStateNames() error {
	for k, vals := range b.States {
		if k == "" || strings.ContainsAny(k, reservedChars) {
			return fmt.Errorf("%w: %s property name %q", ErrInvalidState, b.ID, k)
		}
		for _, v := range vals {
			if v == "" || strings.ContainsAny(v, reservedChars) {
				return fmt.Errorf("%w: %s.%s value %q", ErrInvalidState, b.ID, k, v)
			}
		}
	}
	return nil
}

// ModelFor returns the model name for a state of this block.
func (b *Block) ModelFor(s BlockState) (string, bool) {
	if name, ok := b.Models[s.props]; ok {
		return name, true
	}
	name, ok := b.Models[""]
	return name, ok
}

// AllStates enumerates every combination of declared property values in a
// stable order. A block without properties has exactly one state.
func (b *Block) AllStates() []BlockState {
	keys := make([]string, 0, len(b.States))
	for k := range b.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, k := range keys {
		var next []map[string]string
		for _, c := range combos {
			for _, v := range b.States[k] {
				m := make(map[string]string, len(c)+1)
				for ck, cv := range c {
					m[ck] = cv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	out := make([]BlockState, 0, len(combos))
	for _, c := range combos {
		out = append(out, BlockState{id: b.ID, props: canonicalProps(c)})
	}
	return out
}

// Registry maps block ids to their metadata. It is filled once at startup
// and frozen before any world code reads it.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]*Block
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{blocks: map[string]*Block{}}
}

func (r *Registry) Register(b Block) error {
	if b.ID == "" || strings.ContainsAny(b.ID, reservedChars) {
		return fmt.Errorf("block registry: %w: %q", ErrInvalidID, b.ID)
	}
	if err := b.checkStateNames(); err != nil {
		return fmt.Errorf("block registry: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("block registry: cannot register %s: %w", b.ID, ErrFrozen)
	}
	if _, ok := r.blocks[b.ID]; ok {
		return fmt.Errorf("block registry: %s: %w", b.ID, ErrDuplicate)
	}
	if err := b.ValidateState(b.DefaultState); err != nil {
		return fmt.Errorf("block registry: default state: %w", err)
	}
	bb := b
	r.blocks[b.ID] = &bb
	return nil
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Lookup(id string) (*Block, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[id]
	return b, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// IDs returns the registered ids sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.blocks))
	for id := range r.blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
