package main

import (
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/sim/tuning"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func openSnapshotEngine(t *testing.T, dir, snap string) *engine {
	t.Helper()
	root := findRepoRoot(t)

	tune := tuning.Defaults()
	tune.LoadRadius = 0
	tune.LoadsPerSecond = 0
	tune.Worldgen.Provider = "flat"
	tune.Worldgen.BaseHeight = 4

	eng, err := newEngine(engineConfig{
		WorldID:   "test",
		ConfigDir: filepath.Join(root, "configs"),
		SchemaDir: filepath.Join(root, "schemas"),
		WorldDir:  dir,
		DisableDB: true,
		Snapshot:  snap,
		Tuning:    tune,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func settleAround(t *testing.T, eng *engine, center store.ChunkPos) {
	t.Helper()
	eng.loader.SetCenter(center)
	if !eng.pipeline.StepUntilIdle(10 * time.Second) {
		t.Fatalf("pipeline did not settle around %v", center)
	}
}

func placeGlass(t *testing.T, eng *engine, x, y, z int) {
	t.Helper()
	glass, err := block.NewState(eng.reg, "glass")
	if err != nil {
		t.Fatalf("glass: %v", err)
	}
	if _, err := eng.world.SetBlockAs("tester", x, y, z, glass); err != nil {
		t.Fatalf("set %d,%d,%d: %v", x, y, z, err)
	}
	if !eng.pipeline.StepUntilIdle(10 * time.Second) {
		t.Fatalf("pipeline did not settle after edit")
	}
}

func requireGlass(t *testing.T, eng *engine, x, y, z int) {
	t.Helper()
	got, err := eng.world.GetBlock(x, y, z)
	if err != nil || got.ID() != "glass" {
		t.Fatalf("block %d,%d,%d = %v (err %v), want glass", x, y, z, got, err)
	}
}

func snapshotPositions(s snapshot.SnapshotV1) map[[3]int]bool {
	out := map[[3]int]bool{}
	for _, c := range s.Chunks {
		out[c.Pos] = true
	}
	return out
}

func TestSnapshotEditsSurviveTwoRestarts(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	run1 := openSnapshotEngine(t, dir, "")
	settleAround(t, run1, store.ChunkPos{})
	placeGlass(t, run1, 1, 10, 1)
	if _, err := newSnapshotter(run1, dir, logger).write(true); err != nil {
		t.Fatalf("run1 snapshot: %v", err)
	}
	run1.Close()

	path1, tick1 := newestSnapshot(dir)
	if path1 == "" || tick1 == 0 {
		t.Fatalf("run1 snapshot not found: %q tick=%d", path1, tick1)
	}

	// The second run works elsewhere and never loads chunk 0,0,0.
	run2 := openSnapshotEngine(t, dir, path1)
	if got := run2.pipeline.Tick(); got != tick1 {
		t.Fatalf("run2 resumed at tick %d, want %d", got, tick1)
	}
	settleAround(t, run2, store.ChunkPos{X: 5})
	placeGlass(t, run2, 5*store.ChunkSize+1, 10, 1)
	if _, err := newSnapshotter(run2, dir, logger).write(true); err != nil {
		t.Fatalf("run2 snapshot: %v", err)
	}
	run2.Close()

	path2, tick2 := newestSnapshot(dir)
	if tick2 <= tick1 || path2 == path1 {
		t.Fatalf("newest snapshot after run2: %s tick=%d (run1 tick=%d)", path2, tick2, tick1)
	}
	snap2, err := snapshot.ReadSnapshot(path2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pos := snapshotPositions(snap2)
	if len(pos) != 2 || !pos[[3]int{0, 0, 0}] || !pos[[3]int{5, 0, 0}] {
		t.Fatalf("run2 snapshot chunks: %v", pos)
	}

	run3 := openSnapshotEngine(t, dir, path2)
	settleAround(t, run3, store.ChunkPos{})
	requireGlass(t, run3, 1, 10, 1)
	settleAround(t, run3, store.ChunkPos{X: 5})
	requireGlass(t, run3, 5*store.ChunkSize+1, 10, 1)

	// 0,0,0 is despawned now and 5,0,0 is resident; both stay exported.
	pos = snapshotPositions(run3.snapshot(true))
	if len(pos) != 2 || !pos[[3]int{0, 0, 0}] || !pos[[3]int{5, 0, 0}] {
		t.Fatalf("run3 snapshot chunks: %v", pos)
	}
}
