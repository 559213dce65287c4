package store

import (
	"errors"
	"testing"
)

func TestChunkMapAddRemove(t *testing.T) {
	m := NewChunkMap()
	pos := ChunkPos{X: 1, Y: -2, Z: 3}
	c, err := m.Add(pos)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(pos); !errors.Is(err, ErrDuplicateChunk) {
		t.Fatalf("err=%v want ErrDuplicateChunk", err)
	}
	if got, ok := m.Get(pos); !ok || got != c {
		t.Fatalf("Get returned %v,%v", got, ok)
	}
	if _, err := m.Remove(pos); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.Remove(pos); !errors.Is(err, ErrChunkNotFound) {
		t.Fatalf("err=%v want ErrChunkNotFound", err)
	}
}

func TestChunkMapReAddIsFreshChunk(t *testing.T) {
	m := NewChunkMap()
	pos := ChunkPos{}
	first, _ := m.Add(pos)
	_ = first.Install(Single(air))
	_, _ = m.Remove(pos)
	second, err := m.Add(pos)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if second == first || second.Epoch() == first.Epoch() {
		t.Fatalf("re-added chunk shares identity with despawned one")
	}
	if second.IsInitialized() {
		t.Fatalf("fresh chunk should be uninitialized")
	}
}

func TestChunkInstallOnce(t *testing.T) {
	c := NewChunk(ChunkPos{}, 1)
	if _, err := c.Data(); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("err=%v want ErrUninitialized", err)
	}
	if err := c.Install(Single(air)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if c.Status() != Generated {
		t.Fatalf("status=%s want generated", c.Status())
	}
	if err := c.Install(Single(air)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("err=%v want ErrAlreadyInitialized", err)
	}
}

func TestPositionsSorted(t *testing.T) {
	m := NewChunkMap()
	for _, p := range []ChunkPos{{X: 2}, {X: -1, Y: 5}, {X: -1, Y: 0, Z: 9}} {
		_, _ = m.Add(p)
	}
	got := m.Positions()
	want := []ChunkPos{{X: -1, Y: 0, Z: 9}, {X: -1, Y: 5}, {X: 2}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("positions=%v want %v", got, want)
		}
	}
}

func TestSplitWorld(t *testing.T) {
	cp, lp := SplitWorld(-1, 32, 65)
	if cp != (ChunkPos{X: -1, Y: 1, Z: 2}) || lp != (LocalPos{X: 31, Y: 0, Z: 1}) {
		t.Fatalf("SplitWorld=%v %v", cp, lp)
	}
}
