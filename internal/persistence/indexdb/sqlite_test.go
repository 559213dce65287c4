package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func openTemp(t *testing.T) *ChunkDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index", "world.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleChunk(t *testing.T) *store.ChunkData {
	t.Helper()
	d := store.Single(block.Air())
	for i := 0; i < 20; i++ {
		s := block.Unchecked("stone", map[string]string{"n": string(rune('a' + i))})
		if _, err := d.SetBlock(i, i, 31-i, s); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	return d
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTemp(t)
	pos := store.ChunkPos{X: -2, Y: 1, Z: 7}
	d := sampleChunk(t)

	if !db.SaveChunk(pos, store.Pack(d)) {
		t.Fatalf("save dropped")
	}
	// Visible before the writer commits.
	got, ok, err := db.LoadChunk(pos)
	if err != nil || !ok || !got.Equal(d) {
		t.Fatalf("pending load ok=%v err=%v", ok, err)
	}

	if !db.Flush(5 * time.Second) {
		t.Fatalf("flush timed out")
	}
	got, ok, err = db.LoadChunk(pos)
	if err != nil || !ok {
		t.Fatalf("load ok=%v err=%v", ok, err)
	}
	if !got.Equal(d) || got.Digest() != d.Digest() {
		t.Fatalf("stored chunk differs")
	}
	if db.Stats().SavedTotal != 1 {
		t.Fatalf("saved=%d", db.Stats().SavedTotal)
	}

	list, err := db.ListChunks(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("list=%v err=%v", list, err)
	}
	if list[0].Pos != pos || list[0].Digest != d.Digest() || list[0].Palette != d.PaletteLen() {
		t.Fatalf("row=%+v", list[0])
	}
}

func TestSingleChunkHasNoWords(t *testing.T) {
	db := openTemp(t)
	pos := store.ChunkPos{}
	d := store.Single(block.Unchecked("stone", nil))
	db.SaveChunk(pos, store.Pack(d))
	db.Flush(5 * time.Second)

	got, ok, err := db.LoadChunk(pos)
	if err != nil || !ok || !got.IsSingle() || !got.Equal(d) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestDeleteChunk(t *testing.T) {
	db := openTemp(t)
	pos := store.ChunkPos{Z: 3}
	db.SaveChunk(pos, store.Pack(sampleChunk(t)))
	db.DeleteChunk(pos)
	if _, ok, _ := db.LoadChunk(pos); ok {
		t.Fatalf("pending delete still loads")
	}
	db.Flush(5 * time.Second)
	if _, ok, err := db.LoadChunk(pos); ok || err != nil {
		t.Fatalf("deleted chunk loads: ok=%v err=%v", ok, err)
	}
}

func TestMissingChunk(t *testing.T) {
	db := openTemp(t)
	if d, ok, err := db.LoadChunk(store.ChunkPos{X: 9}); d != nil || ok || err != nil {
		t.Fatalf("d=%v ok=%v err=%v", d, ok, err)
	}
}

func TestEditsNewestFirst(t *testing.T) {
	db := openTemp(t)
	for i := 1; i <= 3; i++ {
		db.RecordEdit(world.AuditEntry{Tick: uint64(i), Actor: "admin", Action: "SET_BLOCK", Pos: [3]int{i, 0, 0}, From: "air", To: "stone"})
	}
	db.Flush(5 * time.Second)
	edits, err := db.Edits(context.Background(), 2)
	if err != nil || len(edits) != 2 {
		t.Fatalf("edits=%v err=%v", edits, err)
	}
	if edits[0].Tick != 3 || edits[1].Tick != 2 || edits[0].New != "stone" {
		t.Fatalf("edits=%+v", edits)
	}
}

func TestMeta(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	if v, ok, err := db.Meta(ctx, "schema_version"); err != nil || !ok || v != schemaVersion {
		t.Fatalf("schema_version=%q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := db.Meta(ctx, "blocks_digest"); ok {
		t.Fatalf("unset key reported")
	}
	if err := db.SetMeta(ctx, "blocks_digest", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _, _ := db.Meta(ctx, "blocks_digest"); v != "abc" {
		t.Fatalf("value=%q", v)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := sampleChunk(t)
	db.SaveChunk(store.ChunkPos{Y: -4}, store.Pack(d))
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, ok, err := db.LoadChunk(store.ChunkPos{Y: -4})
	if err != nil || !ok || !got.Equal(d) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
