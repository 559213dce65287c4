package world

import (
	"sort"

	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

// ExportChunks packs every initialized resident chunk in position order.
// With editedOnly set, chunks equal to their generated form are skipped.
func (w *BlockWorld) ExportChunks(editedOnly bool) []snapshot.ChunkV1 {
	var out []snapshot.ChunkV1
	for _, pos := range w.chunks.Positions() {
		c, ok := w.chunks.Get(pos)
		if !ok || (editedOnly && !c.Edited()) {
			continue
		}
		d, err := c.Data()
		if err != nil {
			continue
		}
		var ch snapshot.ChunkV1
		d.Read(func(cd *store.ChunkData) {
			ch = snapshot.ChunkV1{
				Pos:    [3]int{pos.X, pos.Y, pos.Z},
				Edited: c.Edited(),
				Digest: cd.Digest(),
				Packed: store.Pack(cd),
			}
		})
		out = append(out, ch)
	}
	return out
}

// ExportSnapshot captures the world at the pipeline's current tick: the
// resident chunks, then edited chunks despawned this run, then restored
// chunks that were never loaded again.
func (p *Pipeline) ExportSnapshot(worldID string, editedOnly bool) snapshot.SnapshotV1 {
	p.exportMu.Lock()
	chunks := p.world.ExportChunks(editedOnly)
	seen := make(map[store.ChunkPos]bool, len(chunks))
	for _, c := range chunks {
		seen[c.ChunkPos()] = true
	}
	for _, src := range []*PackedSource{p.parked, p.restored} {
		for _, c := range src.Chunks() {
			if !seen[c.ChunkPos()] {
				seen[c.ChunkPos()] = true
				chunks = append(chunks, c)
			}
		}
	}
	p.exportMu.Unlock()
	sort.Slice(chunks, func(i, j int) bool { return store.LessPos(chunks[i].ChunkPos(), chunks[j].ChunkPos()) })

	s := snapshot.SnapshotV1{
		Header:     snapshot.Header{WorldID: worldID, Tick: p.Tick()},
		TickRateHz: p.cfg.TickRateHz,
		EditedOnly: editedOnly,
		Chunks:     chunks,
	}
	if l := p.loader; l != nil {
		c, r := l.Center()
		s.LoadCenter = [3]int{c.X, c.Y, c.Z}
		s.LoadRadius = r
	}
	return s
}
