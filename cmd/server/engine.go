package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"golang.org/x/time/rate"

	"voxelforge.ai/internal/persistence/indexdb"
	persistlog "voxelforge.ai/internal/persistence/log"
	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/protocol"
	"voxelforge.ai/internal/sim/catalogs"
	"voxelforge.ai/internal/sim/tasks"
	"voxelforge.ai/internal/sim/tuning"
	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/mesh"
	"voxelforge.ai/internal/sim/world/terrain/gen"
	"voxelforge.ai/internal/transport/meshstream"
)

type engineConfig struct {
	WorldID   string
	ConfigDir string
	SchemaDir string
	WorldDir  string
	DisableDB bool
	Snapshot  string
	Tuning    tuning.Tuning
}

// engine wires catalogs, generation, persistence and the pipeline.
type engine struct {
	cfg    engineConfig
	cats   *catalogs.Catalogs
	reg    *block.Registry
	models *mesh.Compiled

	exec     *tasks.Executor
	world    *world.BlockWorld
	pipeline *world.Pipeline
	loader   *world.Loader
	hub      *meshstream.Hub
	db       *indexdb.ChunkDB
	tickLog  *persistlog.TickLogger
	auditLog *persistlog.AuditLogger
}

func newEngine(cfg engineConfig, logger *log.Logger) (*engine, error) {
	cats, err := catalogs.Load(cfg.ConfigDir, cfg.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	reg, err := cats.Registry()
	if err != nil {
		return nil, err
	}
	compiled, err := mesh.Compile(cats.Models.ByName, cats.ReferencedModels())
	if err != nil {
		return nil, fmt.Errorf("compile models: %w", err)
	}
	table, err := mesh.BuildModelTable(reg, compiled.Models)
	if err != nil {
		return nil, err
	}

	tune := cfg.Tuning
	hm, err := gen.NewHeightMap(tune.GenConfig())
	if err != nil {
		return nil, err
	}
	generator, err := gen.NewGenerator(reg, hm, tune.GenConfig())
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, cats: cats, reg: reg, models: compiled}
	src := world.ChainSource{Fallback: generator}
	var (
		restored   *world.PackedSource
		resumeTick uint64
	)

	if cfg.Snapshot != "" {
		snap, err := snapshot.ReadSnapshot(cfg.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.WorldID {
			return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", cfg.WorldID, snap.Header.WorldID)
		}
		if snap.BlocksHash != "" && snap.BlocksHash != cats.Blocks.DefsDigest {
			logger.Printf("snapshot %s was taken with different block definitions", filepath.Base(cfg.Snapshot))
		}
		packed, err := world.PackedSourceFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		src.Loaders = append(src.Loaders, packed)
		restored, resumeTick = packed, snap.Header.Tick
		logger.Printf("resuming %d chunks from snapshot=%s tick=%d", packed.Len(), filepath.Base(cfg.Snapshot), snap.Header.Tick)
	}

	if !cfg.DisableDB {
		db, err := indexdb.Open(filepath.Join(cfg.WorldDir, "index", "world.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open chunk db: %w", err)
		}
		e.db = db
		// Stored edits win over snapshot contents: they are newer.
		src.Loaders = append([]world.ChunkLoader{db}, src.Loaders...)
		e.recordCatalogs(logger)
	}

	e.tickLog = persistlog.NewTickLogger(cfg.WorldDir)
	e.auditLog = persistlog.NewAuditLogger(cfg.WorldDir)
	audit := multiAuditLogger{a: e.auditLog}
	var saver world.ChunkSaver
	if e.db != nil {
		audit.b = e.db
		if tune.PersistEdits {
			saver = e.db
		}
	}

	e.exec = tasks.NewExecutor(tune.Workers)
	e.world = world.NewBlockWorld(reg)
	e.hub = meshstream.NewHub()
	e.pipeline = world.NewPipeline(tune.WorldConfig(), e.world, world.PipelineDeps{
		Source:   src,
		Models:   mesh.NewModelCache(table),
		Sink:     e.hub,
		Saver:    saver,
		Executor: e.exec,
		Logger:   logger,
		TickLog:  e.tickLog,
		Audit:    audit,
		Restored: restored,
	})
	e.pipeline.ResumeAt(resumeTick)

	var lim *rate.Limiter
	if tune.LoadsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(tune.LoadsPerSecond), tune.LoadBurst)
	}
	e.loader = world.NewLoader(e.world, tune.LoadRadius, lim)
	e.pipeline.AttachLoader(e.loader)
	return e, nil
}

// recordCatalogs stores the catalog digests and warns when the stored
// chunks were written under different block definitions.
func (e *engine) recordCatalogs(logger *log.Logger) {
	ctx := context.Background()
	prev, ok, err := e.db.Meta(ctx, "blocks_digest")
	if err == nil && ok && prev != e.cats.Blocks.DefsDigest {
		logger.Printf("chunk db was written with different block definitions (%s)", prev)
	}
	for k, v := range map[string]string{
		"world_id":      e.cfg.WorldID,
		"blocks_digest": e.cats.Blocks.DefsDigest,
		"models_digest": e.cats.Models.Digest,
		"tuning_digest": e.cfg.Tuning.Digest(),
	} {
		if err := e.db.SetMeta(ctx, k, v); err != nil {
			logger.Printf("chunk db meta %s: %v", k, err)
		}
	}
}

func (e *engine) info() meshstream.Info {
	t := e.cfg.Tuning
	return meshstream.Info{
		Params: protocol.WorldParams{
			TickRateHz:        e.pipeline.TickRateHz(),
			ChunkSize:         32,
			BytesPerVertex:    mesh.BytesPerVertex,
			UploadBudgetBytes: t.UploadBudgetBytes,
		},
		Catalogs: protocol.CatalogDigests{
			BlocksDigest: e.cats.Blocks.DefsDigest,
			ModelsDigest: e.cats.Models.Digest,
			Textures:     e.models.Textures,
		},
	}
}

// snapshot captures the world with the engine's catalog and worldgen info.
func (e *engine) snapshot(editedOnly bool) snapshot.SnapshotV1 {
	s := e.pipeline.ExportSnapshot(e.cfg.WorldID, editedOnly)
	g := e.cfg.Tuning.Worldgen
	s.Seed = g.Seed
	s.Provider = g.Provider
	s.BlocksHash = e.cats.Blocks.DefsDigest
	s.ModelsHash = e.cats.Models.Digest
	return s
}

// Close stops the workers, then flushes the logs and the chunk db.
func (e *engine) Close() {
	e.exec.Stop()
	_ = e.tickLog.Close()
	_ = e.auditLog.Close()
	if e.db != nil {
		_ = e.db.Close()
	}
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
