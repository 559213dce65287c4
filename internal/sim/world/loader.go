package world

import (
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"voxelforge.ai/internal/sim/world/logic/mathx"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

const MaxLoadRadius = 16

// Loader keeps the cube of chunks within radius of a center resident.
// Missing chunks are queued nearest first, paced by the limiter; resident
// chunks outside the cube are queued for despawn.
type Loader struct {
	w   *BlockWorld
	lim *rate.Limiter

	mu      sync.Mutex
	center  store.ChunkPos
	radius  int
	active  bool
	offsets []store.ChunkPos
}

// NewLoader builds a loader; a nil limiter queues without pacing.
func NewLoader(w *BlockWorld, radius int, lim *rate.Limiter) *Loader {
	l := &Loader{w: w, lim: lim}
	l.setRadiusLocked(radius)
	return l
}

// SetCenter moves the cube and activates the loader.
func (l *Loader) SetCenter(c store.ChunkPos) {
	l.mu.Lock()
	l.center = c
	l.active = true
	l.mu.Unlock()
}

// SetCenterWorld centers the cube on the chunk containing a world position.
func (l *Loader) SetCenterWorld(x, y, z int) {
	cp, _ := store.SplitWorld(x, y, z)
	l.SetCenter(cp)
}

func (l *Loader) SetRadius(r int) {
	l.mu.Lock()
	l.setRadiusLocked(r)
	l.mu.Unlock()
}

func (l *Loader) setRadiusLocked(r int) {
	r = mathx.ClampInt(r, 0, MaxLoadRadius)
	if r == l.radius && l.offsets != nil {
		return
	}
	l.radius = r
	l.offsets = cubeOffsets(r)
}

func (l *Loader) Center() (store.ChunkPos, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.center, l.radius
}

func (l *Loader) Contains(pos store.ChunkPos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active && inCube(pos, l.center, l.radius)
}

// Tick queues despawns and generations for the current center.
func (l *Loader) Tick() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	center, radius, offsets := l.center, l.radius, l.offsets
	l.mu.Unlock()

	for _, pos := range l.w.chunks.Positions() {
		if !inCube(pos, center, radius) && !l.w.queue.isQueuedDespawn(pos) {
			l.w.QueueChunkDespawn(pos)
		}
	}
	for _, off := range offsets {
		pos := center.Add(off.X, off.Y, off.Z)
		if l.w.IsResident(pos) || l.w.IsPending(pos) {
			continue
		}
		if l.lim != nil && !l.lim.Allow() {
			return
		}
		l.w.QueueChunkGeneration(pos)
	}
}

func inCube(pos, c store.ChunkPos, r int) bool {
	return mathx.AbsInt(pos.X-c.X) <= r && mathx.AbsInt(pos.Y-c.Y) <= r && mathx.AbsInt(pos.Z-c.Z) <= r
}

// cubeOffsets lists every offset of a (2r+1)^3 cube, nearest first.
func cubeOffsets(r int) []store.ChunkPos {
	out := make([]store.ChunkPos, 0, (2*r+1)*(2*r+1)*(2*r+1))
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				out = append(out, store.ChunkPos{X: x, Y: y, Z: z})
			}
		}
	}
	dist := func(p store.ChunkPos) int { return p.X*p.X + p.Y*p.Y + p.Z*p.Z }
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := dist(out[i]), dist(out[j])
		if di != dj {
			return di < dj
		}
		return store.LessPos(out[i], out[j])
	})
	return out
}
