package block

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidID    = errors.New("invalid block id")
	ErrInvalidState = errors.New("invalid block state")
)

const AirID = "air"

// BlockState is an interned block id plus its state properties.
// Properties are kept in canonical form ("k=v,k=v" sorted by key), so two
// states with the same id and properties compare equal with ==.
type BlockState struct {
	id    string
	props string
}

// NewState builds the default state of a registered block.
func NewState(reg *Registry, id string) (BlockState, error) {
	b, ok := reg.Lookup(id)
	if !ok {
		return BlockState{}, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return BlockState{id: id, props: canonicalProps(b.DefaultState)}, nil
}

// WithState builds a state of a registered block with explicit properties.
// Every key must be declared by the block and every value must be allowed.
func WithState(reg *Registry, id string, props map[string]string) (BlockState, error) {
	b, ok := reg.Lookup(id)
	if !ok {
		return BlockState{}, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	if err := b.ValidateState(props); err != nil {
		return BlockState{}, err
	}
	return BlockState{id: id, props: canonicalProps(props)}, nil
}

// Unchecked builds a state without consulting a registry. Decoders of stored
// chunks and tests use it; game logic goes through NewState/WithState.
func Unchecked(id string, props map[string]string) BlockState {
	return BlockState{id: id, props: canonicalProps(props)}
}

func Air() BlockState { return BlockState{id: AirID} }

func (s BlockState) ID() string { return s.id }

func (s BlockState) IsAir() bool { return s.id == AirID }

// Props returns a copy of the state properties.
func (s BlockState) Props() map[string]string {
	out := map[string]string{}
	if s.props == "" {
		return out
	}
	for _, kv := range strings.Split(s.props, ",") {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

// PropsKey is the canonical property string, empty when there are none.
func (s BlockState) PropsKey() string { return s.props }

func (s BlockState) String() string {
	if s.props == "" {
		return s.id
	}
	return s.id + "[" + s.props + "]"
}

// ParseState is the inverse of String.
func ParseState(s string) (BlockState, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BlockState{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return BlockState{id: s}, nil
	}
	if !strings.HasSuffix(s, "]") || open == 0 {
		return BlockState{}, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	props := map[string]string{}
	body := s[open+1 : len(s)-1]
	if body != "" {
		for _, kv := range strings.Split(body, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return BlockState{}, fmt.Errorf("%w: %q", ErrInvalidState, s)
			}
			props[k] = v
		}
	}
	return BlockState{id: s[:open], props: canonicalProps(props)}, nil
}

func (s BlockState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *BlockState) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func canonicalProps(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(m[k])
	}
	return sb.String()
}
