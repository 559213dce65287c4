package meshstream

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelforge.ai/internal/protocol"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func quad() *mesh.Mesh {
	return &mesh.Mesh{
		Positions:  []mgl32.Vec3{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
		UVs:        []mgl32.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}},
		Normals:    []mgl32.Vec3{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		TextureIDs: []uint32{2, 2, 2, 2},
		Indices:    []uint32{0, 1, 2, 0, 2, 3},
	}
}

func drain(s *Session) []protocol.BaseMessage {
	var out []protocol.BaseMessage
	for {
		select {
		case b := <-s.Out():
			m, _ := protocol.DecodeBase(b)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestUploadReachesCoveringSessions(t *testing.T) {
	h := NewHub()
	near := h.Subscribe("near", store.ChunkPos{}, 1, 0)
	far := h.Subscribe("far", store.ChunkPos{X: 10}, 1, 0)

	handle := h.Upload(store.ChunkPos{X: 1}, 0, quad())
	if handle == 0 {
		t.Fatalf("no handle assigned")
	}
	if again := h.Upload(store.ChunkPos{X: 1}, handle, quad()); again != handle {
		t.Fatalf("handle changed %d -> %d", handle, again)
	}

	select {
	case b := <-near.Out():
		var m protocol.MeshMsg
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m.Type != protocol.TypeChunkMesh || m.Pos != [3]int{1, 0, 0} || m.Handle != handle {
			t.Fatalf("msg=%+v", m)
		}
		if len(m.Positions) != 4 || m.Positions[2] != [3]float32{1, 1, 1} || m.TextureIDs[0] != 2 {
			t.Fatalf("vertices=%v textures=%v", m.Positions, m.TextureIDs)
		}
	default:
		t.Fatalf("near session got nothing")
	}
	if got := drain(far); len(got) != 0 {
		t.Fatalf("far session got %d messages", len(got))
	}
}

func TestSubscribeSendsBacklogAndRemove(t *testing.T) {
	h := NewHub()
	a := h.Upload(store.ChunkPos{X: 2}, 0, quad())
	h.Upload(store.ChunkPos{}, 0, quad())

	s := h.Subscribe("s", store.ChunkPos{}, 2, 0)
	var first protocol.MeshMsg
	if err := json.Unmarshal(<-s.Out(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Pos != [3]int{0, 0, 0} {
		t.Fatalf("backlog should start nearest, got %v", first.Pos)
	}
	drain(s)

	h.Remove(store.ChunkPos{X: 2}, a)
	got := drain(s)
	if len(got) != 1 || got[0].Type != protocol.TypeChunkRemove {
		t.Fatalf("got %+v", got)
	}
	if h.Stats().Meshes != 1 {
		t.Fatalf("meshes=%d want 1", h.Stats().Meshes)
	}
}

func TestResubscribeDiffsRegion(t *testing.T) {
	h := NewHub()
	h.Upload(store.ChunkPos{}, 0, quad())
	h.Upload(store.ChunkPos{X: 5}, 0, quad())

	s := h.Subscribe("s", store.ChunkPos{}, 1, 0)
	drain(s)
	if !h.Resubscribe("s", store.ChunkPos{X: 5}, 1) {
		t.Fatalf("unknown session")
	}
	got := drain(s)
	if len(got) != 2 || got[0].Type != protocol.TypeChunkRemove || got[1].Type != protocol.TypeChunkMesh {
		t.Fatalf("got %+v", got)
	}
	h.Unsubscribe("s")
	if h.Resubscribe("s", store.ChunkPos{}, 1) {
		t.Fatalf("resubscribed a closed session")
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("s", store.ChunkPos{}, 4, 2)
	for x := 0; x < 4; x++ {
		h.Upload(store.ChunkPos{X: x}, 0, quad())
	}
	var pos [][3]int
	for _, b := range [][]byte{<-s.Out(), <-s.Out()} {
		var m protocol.MeshMsg
		_ = json.Unmarshal(b, &m)
		pos = append(pos, m.Pos)
	}
	if pos[0] != [3]int{2, 0, 0} || pos[1] != [3]int{3, 0, 0} {
		t.Fatalf("kept %v, want the two newest", pos)
	}
	if st := h.Stats(); st.Dropped != 2 || st.Sent != 4 {
		t.Fatalf("stats=%+v", st)
	}
}
