// Package meshstream forwards uploaded chunk meshes to websocket clients.
package meshstream

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"voxelforge.ai/internal/protocol"
	"voxelforge.ai/internal/sim/world/logic/mathx"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

const (
	DefaultQueue = 256
	MaxQueue     = 4096
)

type entry struct {
	handle uint64
	msg    []byte
}

// Hub is the upload sink of the pipeline. It keeps the latest mesh of every
// visible chunk and fans uploads out to the sessions whose region covers
// the chunk. Deliveries happen under mu so every session sees one order.
type Hub struct {
	mu       sync.RWMutex
	next     uint64
	meshes   map[store.ChunkPos]entry
	sessions map[string]*Session

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		meshes:   map[store.ChunkPos]entry{},
		sessions: map[string]*Session{},
	}
}

// Upload implements world.UploadSink.
func (h *Hub) Upload(pos store.ChunkPos, handle uint64, m *mesh.Mesh) uint64 {
	h.mu.Lock()
	if handle == 0 {
		h.next++
		handle = h.next
	}
	b, err := json.Marshal(meshMsg(pos, handle, m))
	if err != nil {
		h.mu.Unlock()
		return handle
	}
	h.meshes[pos] = entry{handle: handle, msg: b}
	for _, s := range h.covering(pos) {
		h.deliver(s, b)
	}
	h.mu.Unlock()
	return handle
}

// Remove implements world.UploadSink.
func (h *Hub) Remove(pos store.ChunkPos, handle uint64) {
	h.mu.Lock()
	if e, ok := h.meshes[pos]; ok && e.handle == handle {
		delete(h.meshes, pos)
	}
	b := removeMsg(pos, handle)
	for _, s := range h.covering(pos) {
		h.deliver(s, b)
	}
	h.mu.Unlock()
}

func (h *Hub) covering(pos store.ChunkPos) []*Session {
	var out []*Session
	for _, s := range h.sessions {
		if s.covers(pos) {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) deliver(s *Session, b []byte) {
	if s.send(b) {
		h.dropped.Inc()
	}
	h.sent.Inc()
}

// Subscribe registers a session and queues every known mesh inside its
// region, nearest first.
func (h *Hub) Subscribe(id string, center store.ChunkPos, radius, queue int) *Session {
	if queue <= 0 {
		queue = DefaultQueue
	}
	queue = mathx.ClampInt(queue, 1, MaxQueue)
	s := &Session{id: id, out: make(chan []byte, queue)}

	h.mu.Lock()
	h.sessions[id] = s
	s.setRegion(center, radius)
	for _, b := range h.inRegion(center, radius, nil) {
		h.deliver(s, b)
	}
	h.mu.Unlock()
	return s
}

// Resubscribe moves a session's region. Meshes that leave the region are
// removed on the client and meshes that enter it are sent.
func (h *Hub) Resubscribe(id string, center store.ChunkPos, radius int) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	oldCenter, oldRadius := s.region()
	s.setRegion(center, radius)

	var msgs [][]byte
	for _, pos := range sortedPositions(h.meshes) {
		was, is := inCube(pos, oldCenter, oldRadius), inCube(pos, center, radius)
		switch {
		case was && !is:
			msgs = append(msgs, removeMsg(pos, h.meshes[pos].handle))
		case is && !was:
			msgs = append(msgs, h.meshes[pos].msg)
		}
	}
	for _, b := range msgs {
		h.deliver(s, b)
	}
	h.mu.Unlock()
	return true
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// inRegion must be called with h.mu held.
func (h *Hub) inRegion(center store.ChunkPos, radius int, out [][]byte) [][]byte {
	var in []store.ChunkPos
	for pos := range h.meshes {
		if inCube(pos, center, radius) {
			in = append(in, pos)
		}
	}
	dist := func(p store.ChunkPos) int {
		dx, dy, dz := p.X-center.X, p.Y-center.Y, p.Z-center.Z
		return dx*dx + dy*dy + dz*dz
	}
	sort.Slice(in, func(i, j int) bool {
		di, dj := dist(in[i]), dist(in[j])
		if di != dj {
			return di < dj
		}
		return store.LessPos(in[i], in[j])
	})
	for _, pos := range in {
		out = append(out, h.meshes[pos].msg)
	}
	return out
}

type HubStats struct {
	Sessions int    `json:"sessions"`
	Meshes   int    `json:"meshes"`
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Sessions: len(h.sessions),
		Meshes:   len(h.meshes),
		Sent:     h.sent.Load(),
		Dropped:  h.dropped.Load(),
	}
}

// Session is one subscriber's region and send queue.
type Session struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	center store.ChunkPos
	radius int
}

func (s *Session) ID() string { return s.id }

// Out yields encoded messages in send order.
func (s *Session) Out() <-chan []byte { return s.out }

func (s *Session) setRegion(c store.ChunkPos, r int) {
	s.mu.Lock()
	s.center, s.radius = c, r
	s.mu.Unlock()
}

func (s *Session) region() (store.ChunkPos, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.radius
}

func (s *Session) covers(pos store.ChunkPos) bool {
	c, r := s.region()
	return inCube(pos, c, r)
}

// send enqueues b, dropping the oldest queued message when full. It reports
// whether something was dropped.
func (s *Session) send(b []byte) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.out <- b:
			return dropped
		default:
		}
		select {
		case <-s.out:
			dropped = true
		default:
		}
	}
}

func inCube(pos, c store.ChunkPos, r int) bool {
	return mathx.AbsInt(pos.X-c.X) <= r && mathx.AbsInt(pos.Y-c.Y) <= r && mathx.AbsInt(pos.Z-c.Z) <= r
}

func sortedPositions(m map[store.ChunkPos]entry) []store.ChunkPos {
	out := make([]store.ChunkPos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return store.LessPos(out[i], out[j]) })
	return out
}

func meshMsg(pos store.ChunkPos, handle uint64, m *mesh.Mesh) protocol.MeshMsg {
	msg := protocol.MeshMsg{
		Type:            protocol.TypeChunkMesh,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{pos.X, pos.Y, pos.Z},
		Handle:          handle,
		Positions:       make([][3]float32, len(m.Positions)),
		UVs:             make([][2]float32, len(m.UVs)),
		Normals:         make([][3]float32, len(m.Normals)),
		TextureIDs:      append([]uint32{}, m.TextureIDs...),
		Indices:         append([]uint32{}, m.Indices...),
	}
	for i, v := range m.Positions {
		msg.Positions[i] = [3]float32(v)
	}
	for i, v := range m.UVs {
		msg.UVs[i] = [2]float32(v)
	}
	for i, v := range m.Normals {
		msg.Normals[i] = [3]float32(v)
	}
	return msg
}

func removeMsg(pos store.ChunkPos, handle uint64) []byte {
	b, _ := json.Marshal(protocol.RemoveMsg{
		Type:            protocol.TypeChunkRemove,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{pos.X, pos.Y, pos.Z},
		Handle:          handle,
	})
	return b
}
