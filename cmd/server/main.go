package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"voxelforge.ai/internal/sim/tuning"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory (empty to skip validation)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the chunk database (edits are not persisted)")
		center     = flag.String("center", "0,0,0", "initial load center in chunk coordinates")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.LoadOrDefault(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	startCenter, err := parseChunkPos(*center)
	if err != nil {
		logger.Fatalf("-center: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	eng, err := newEngine(engineConfig{
		WorldID:   *worldID,
		ConfigDir: *configDir,
		SchemaDir: *schemaDir,
		WorldDir:  worldDir,
		DisableDB: *disableDB,
		Snapshot:  snapshotToLoad,
		Tuning:    tune,
	}, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	defer eng.Close()
	// Snapshot names must keep increasing even when resuming from an older file.
	if _, t := newestSnapshot(worldDir); t > eng.pipeline.Tick() {
		eng.pipeline.ResumeAt(t)
	}

	logger.Printf("blocks=%d models=%d textures=%d upload budget=%s/tick at %d Hz",
		eng.reg.Len(), len(eng.models.Models), len(eng.models.Textures),
		humanize.IBytes(uint64(tune.UploadBudgetBytes)), tune.TickRateHz)

	ctx, cancel := signalContext()
	defer cancel()

	eng.loader.SetCenter(startCenter)

	snaps := newSnapshotter(eng, worldDir, logger)
	go snaps.run(ctx, tune.SnapshotEveryTicks)

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := eng.pipeline.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("pipeline stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(eng, snaps, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-pipelineDone
	if _, err := snaps.write(true); err != nil {
		logger.Printf("final snapshot: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func parseChunkPos(s string) (store.ChunkPos, error) {
	var p store.ChunkPos
	v, err := parseInts(s, 3)
	if err != nil {
		return p, err
	}
	return store.ChunkPos{X: v[0], Y: v[1], Z: v[2]}, nil
}
