package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"voxelforge.ai/internal/persistence/snapshot"
)

// snapshotter writes world snapshots under <worldDir>/snapshots, named by
// tick. Writes are serialized; periodic and admin requests share it.
type snapshotter struct {
	eng    *engine
	dir    string
	logger *log.Logger

	mu       sync.Mutex
	lastTick uint64
}

func newSnapshotter(eng *engine, worldDir string, logger *log.Logger) *snapshotter {
	return &snapshotter{
		eng:      eng,
		dir:      filepath.Join(worldDir, "snapshots"),
		logger:   logger,
		lastTick: eng.pipeline.Tick(),
	}
}

// run writes an edited-only snapshot every `every` ticks until ctx ends.
// every <= 0 disables periodic snapshots.
func (s *snapshotter) run(ctx context.Context, every int) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		tick := s.eng.pipeline.Tick()
		s.mu.Lock()
		due := tick >= s.lastTick+uint64(every)
		s.mu.Unlock()
		if !due {
			continue
		}
		if _, err := s.write(true); err != nil {
			s.logger.Printf("snapshot: %v", err)
		}
	}
}

// write captures and stores one snapshot, returning its path.
func (s *snapshotter) write(editedOnly bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.eng.snapshot(editedOnly)
	path := filepath.Join(s.dir, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	s.lastTick = snap.Header.Tick
	size := "?"
	if fi, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	s.logger.Printf("snapshot tick=%d chunks=%d size=%s path=%s", snap.Header.Tick, len(snap.Chunks), size, path)
	return path, nil
}

func latestSnapshot(worldDir string) string {
	path, _ := newestSnapshot(worldDir)
	return path
}

// newestSnapshot returns the snapshot with the highest tick and that tick.
func newestSnapshot(worldDir string) (string, uint64) {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best, bestTick
}
