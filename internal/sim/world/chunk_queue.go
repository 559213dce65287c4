package world

import (
	"sync"

	"voxelforge.ai/internal/sim/tasks"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

type genJob struct {
	epoch uint64
	task  *tasks.Task[sourced]
}

// sourced is a source result; stored marks data that came from a loader
// rather than the generator.
type sourced struct {
	data   *store.ChunkData
	stored bool
}

type genResult struct {
	pos   store.ChunkPos
	epoch uint64
	sourced
	err error
}

type meshJob struct {
	epoch uint64
	task  *tasks.Task[*mesh.Mesh]
}

type meshResult struct {
	pos   store.ChunkPos
	epoch uint64
	mesh  *mesh.Mesh
}

// ChunkQueue tracks chunk positions through the pipeline stages. The intake
// queues and the dirty set may be touched from any goroutine; in-flight and
// finished collections belong to the pipeline tick.
type ChunkQueue struct {
	mu         sync.Mutex
	toGenerate []store.ChunkPos
	toDespawn  []store.ChunkPos
	needsMesh  map[store.ChunkPos]struct{}

	generating   map[store.ChunkPos]genJob
	meshing      map[store.ChunkPos]meshJob
	finishedGen  []genResult
	finishedMesh []meshResult
}

func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{
		needsMesh:  map[store.ChunkPos]struct{}{},
		generating: map[store.ChunkPos]genJob{},
		meshing:    map[store.ChunkPos]meshJob{},
	}
}

func (q *ChunkQueue) pushGenerate(pos store.ChunkPos) {
	q.mu.Lock()
	q.toGenerate = append(q.toGenerate, pos)
	q.mu.Unlock()
}

func (q *ChunkQueue) pushDespawn(pos store.ChunkPos) {
	q.mu.Lock()
	q.toDespawn = append(q.toDespawn, pos)
	q.mu.Unlock()
}

func (q *ChunkQueue) takeGenerate() []store.ChunkPos {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.toGenerate
	q.toGenerate = nil
	return out
}

func (q *ChunkQueue) takeDespawn() []store.ChunkPos {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.toDespawn
	q.toDespawn = nil
	return out
}

func (q *ChunkQueue) isQueuedGenerate(pos store.ChunkPos) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.toGenerate {
		if p == pos {
			return true
		}
	}
	return false
}

func (q *ChunkQueue) isQueuedDespawn(pos store.ChunkPos) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.toDespawn {
		if p == pos {
			return true
		}
	}
	return false
}

func (q *ChunkQueue) markDirty(pos store.ChunkPos) {
	q.mu.Lock()
	q.needsMesh[pos] = struct{}{}
	q.mu.Unlock()
}

func (q *ChunkQueue) clearDirty(pos store.ChunkPos) {
	q.mu.Lock()
	delete(q.needsMesh, pos)
	q.mu.Unlock()
}

func (q *ChunkQueue) dirty() []store.ChunkPos {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]store.ChunkPos, 0, len(q.needsMesh))
	for p := range q.needsMesh {
		out = append(out, p)
	}
	return out
}

// IsDirty reports whether pos waits for a (re)mesh.
func (q *ChunkQueue) IsDirty(pos store.ChunkPos) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.needsMesh[pos]
	return ok
}

// QueueDepths counts positions per stage.
type QueueDepths struct {
	ToGenerate   int `json:"to_generate"`
	ToDespawn    int `json:"to_despawn"`
	Generating   int `json:"generating"`
	FinishedGen  int `json:"finished_generating"`
	NeedsMesh    int `json:"needs_mesh"`
	Meshing      int `json:"meshing"`
	FinishedMesh int `json:"finished_meshing"`
}

// depths must be called from the pipeline tick.
func (q *ChunkQueue) depths() QueueDepths {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueDepths{
		ToGenerate:   len(q.toGenerate),
		ToDespawn:    len(q.toDespawn),
		Generating:   len(q.generating),
		FinishedGen:  len(q.finishedGen),
		NeedsMesh:    len(q.needsMesh),
		Meshing:      len(q.meshing),
		FinishedMesh: len(q.finishedMesh),
	}
}
