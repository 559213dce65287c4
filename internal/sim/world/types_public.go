package world

import (
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// BlockChange is emitted after every successful edit that changed a cell.
type BlockChange struct {
	X, Y, Z int
	Chunk   store.ChunkPos
	Local   store.LocalPos
	Old     block.BlockState
	New     block.BlockState
	Actor   string
}

// UploadSink receives finished meshes. Upload returns the handle of the
// visual now showing the chunk; handle is 0 when the chunk had none.
type UploadSink interface {
	Upload(pos store.ChunkPos, handle uint64, m *mesh.Mesh) uint64
	Remove(pos store.ChunkPos, handle uint64)
}

// Source produces the voxels of a chunk that has never been seen.
type Source interface {
	Generate(pos store.ChunkPos) (*store.ChunkData, error)
}

type SourceFunc func(pos store.ChunkPos) (*store.ChunkData, error)

func (f SourceFunc) Generate(pos store.ChunkPos) (*store.ChunkData, error) { return f(pos) }

// ChunkLoader returns previously stored voxels; ok is false when nothing is stored.
type ChunkLoader interface {
	LoadChunk(pos store.ChunkPos) (d *store.ChunkData, ok bool, err error)
}

// ChunkSaver persists edited chunks when they are despawned. SaveChunk may
// queue the write and report false when it had to drop it.
type ChunkSaver interface {
	SaveChunk(pos store.ChunkPos, p store.PackedChunk) bool
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry summarizes one pipeline tick that did any work.
type TickLogEntry struct {
	Tick          uint64   `json:"tick"`
	GenSpawned    int      `json:"gen_spawned,omitempty"`
	Despawned     int      `json:"despawned,omitempty"`
	Installed     int      `json:"installed,omitempty"`
	MeshSpawned   int      `json:"mesh_spawned,omitempty"`
	Uploaded      int      `json:"uploaded,omitempty"`
	UploadedBytes uint64   `json:"uploaded_bytes,omitempty"`
	BudgetLeft    int64    `json:"budget_left"`
	Discarded     int      `json:"discarded,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

func (e TickLogEntry) empty() bool {
	return e.GenSpawned == 0 && e.Despawned == 0 && e.Installed == 0 && e.MeshSpawned == 0 &&
		e.Uploaded == 0 && e.Discarded == 0 && len(e.Errors) == 0
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // "SET_BLOCK"
	Pos    [3]int `json:"pos"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
