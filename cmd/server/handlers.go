package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"voxelforge.ai/internal/protocol"
	"voxelforge.ai/internal/sim/encoding"
	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
	"voxelforge.ai/internal/transport/meshstream"
)

func newMux(eng *engine, snaps *snapshotter, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, eng)
	})

	if envBool("VC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		a := &adminAPI{eng: eng, snaps: snaps}
		mux.HandleFunc("/admin/v1/state", loopbackOnly(a.state))
		mux.HandleFunc("/admin/v1/block", loopbackOnly(a.block))
		mux.HandleFunc("/admin/v1/chunk", loopbackOnly(a.chunk))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(a.snapshot))
		mux.HandleFunc("/admin/v1/center", loopbackOnly(a.center))
	} else {
		logger.Printf("admin endpoints disabled (VC_ENABLE_ADMIN_HTTP=false)")
	}

	ms := meshstream.NewServer(eng.hub, eng.info, logger)
	mux.HandleFunc("/v1/mesh/bootstrap", ms.BootstrapHandler())
	mux.HandleFunc("/v1/mesh/ws", ms.WSHandler())
	return mux
}

func writeMetrics(rw http.ResponseWriter, eng *engine) {
	id := eng.cfg.WorldID
	m := eng.pipeline.Metrics()

	fmt.Fprintf(rw, "# HELP voxelforge_tick Current pipeline tick.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_tick gauge\n")
	fmt.Fprintf(rw, "voxelforge_tick{world=%q} %d\n", id, m.Tick)

	fmt.Fprintf(rw, "# HELP voxelforge_resident_chunks Resident chunk count.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_resident_chunks gauge\n")
	fmt.Fprintf(rw, "voxelforge_resident_chunks{world=%q} %d\n", id, m.Resident)

	fmt.Fprintf(rw, "# HELP voxelforge_queue_depth Pipeline stage backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_queue_depth gauge\n")
	q := m.QueueDepths
	for _, kv := range []struct {
		name string
		v    int
	}{
		{"to_generate", q.ToGenerate},
		{"to_despawn", q.ToDespawn},
		{"generating", q.Generating},
		{"finished_gen", q.FinishedGen},
		{"needs_mesh", q.NeedsMesh},
		{"meshing", q.Meshing},
		{"finished_mesh", q.FinishedMesh},
	} {
		fmt.Fprintf(rw, "voxelforge_queue_depth{world=%q,queue=%q} %d\n", id, kv.name, kv.v)
	}

	fmt.Fprintf(rw, "# HELP voxelforge_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_step_ms gauge\n")
	fmt.Fprintf(rw, "voxelforge_step_ms{world=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP voxelforge_upload_budget_left Bytes of upload budget left after the last tick.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_upload_budget_left gauge\n")
	fmt.Fprintf(rw, "voxelforge_upload_budget_left{world=%q} %d\n", id, m.BudgetLeft)

	fmt.Fprintf(rw, "# HELP voxelforge_running_tasks Worker tasks in flight.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_running_tasks gauge\n")
	fmt.Fprintf(rw, "voxelforge_running_tasks{world=%q} %d\n", id, m.RunningTasks)

	s := m.Stats
	fmt.Fprintf(rw, "# HELP voxelforge_pipeline_total Cumulative pipeline counters.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_pipeline_total counter\n")
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"gen_spawned", s.GenSpawned},
		{"installed", s.Installed},
		{"mesh_spawned", s.MeshSpawned},
		{"meshed", s.Meshed},
		{"empty_meshes", s.EmptyMeshes},
		{"uploaded", s.Uploaded},
		{"uploaded_bytes", s.UploadedBytes},
		{"despawned", s.Despawned},
		{"discarded", s.Discarded},
		{"saved", s.Saved},
		{"save_dropped", s.SaveDropped},
		{"errors", s.Errors},
	} {
		fmt.Fprintf(rw, "voxelforge_pipeline_total{world=%q,counter=%q} %d\n", id, kv.name, kv.v)
	}

	hs := eng.hub.Stats()
	fmt.Fprintf(rw, "# HELP voxelforge_mesh_sessions Connected mesh stream sessions.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_mesh_sessions gauge\n")
	fmt.Fprintf(rw, "voxelforge_mesh_sessions{world=%q} %d\n", id, hs.Sessions)
	fmt.Fprintf(rw, "# HELP voxelforge_mesh_messages_total Mesh stream messages by outcome.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_mesh_messages_total counter\n")
	fmt.Fprintf(rw, "voxelforge_mesh_messages_total{world=%q,outcome=%q} %d\n", id, "sent", hs.Sent)
	fmt.Fprintf(rw, "voxelforge_mesh_messages_total{world=%q,outcome=%q} %d\n", id, "dropped", hs.Dropped)

	if eng.db == nil {
		return
	}
	ds := eng.db.Stats()
	fmt.Fprintf(rw, "# HELP voxelforge_chunkdb_queue_depth Chunk db write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_chunkdb_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelforge_chunkdb_queue_depth{world=%q} %d\n", id, ds.QueueDepth)
	fmt.Fprintf(rw, "# HELP voxelforge_chunkdb_total Chunk db write counters.\n")
	fmt.Fprintf(rw, "# TYPE voxelforge_chunkdb_total counter\n")
	fmt.Fprintf(rw, "voxelforge_chunkdb_total{world=%q,counter=%q} %d\n", id, "saved", ds.SavedTotal)
	fmt.Fprintf(rw, "voxelforge_chunkdb_total{world=%q,counter=%q} %d\n", id, "drop_save", ds.DropSaveTotal)
	fmt.Fprintf(rw, "voxelforge_chunkdb_total{world=%q,counter=%q} %d\n", id, "drop_edit", ds.DropEditTotal)
	fmt.Fprintf(rw, "voxelforge_chunkdb_total{world=%q,counter=%q} %d\n", id, "write_fail", ds.WriteFailTotal)
	fmt.Fprintf(rw, "voxelforge_chunkdb_total{world=%q,counter=%q} %d\n", id, "commit_fail", ds.CommitFailTotal)
}

// adminAPI serves the local-only inspection and edit endpoints.
type adminAPI struct {
	eng   *engine
	snaps *snapshotter
}

func (a *adminAPI) state(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		WorldID string                  `json:"world_id"`
		Tick    uint64                  `json:"tick"`
		Metrics world.PipelineMetrics   `json:"metrics"`
		Hub     meshstream.HubStats     `json:"hub"`
		DB      any                     `json:"db,omitempty"`
		Digests protocol.CatalogDigests `json:"catalogs"`
	}{
		WorldID: a.eng.cfg.WorldID,
		Tick:    a.eng.pipeline.Tick(),
		Metrics: a.eng.pipeline.Metrics(),
		Hub:     a.eng.hub.Stats(),
		Digests: a.eng.info().Catalogs,
	}
	if a.eng.db != nil {
		resp.DB = a.eng.db.Stats()
	}
	writeJSON(rw, http.StatusOK, resp)
}

type setBlockReq struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
	Actor string `json:"actor"`
}

func (a *adminAPI) block(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		v, err := parseInts(r.URL.Query().Get("pos"), 3)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		s, err := a.eng.world.GetBlock(v[0], v[1], v[2])
		if err != nil {
			writeWorldError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"pos": v, "block": s.String()})

	case http.MethodPost:
		var req setBlockReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		s, err := a.resolveState(req.Block)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrInvalidTarget, err.Error())
			return
		}
		actor := strings.TrimSpace(req.Actor)
		if actor == "" {
			actor = "admin"
		}
		old, err := a.eng.world.SetBlockAs(actor, req.Pos[0], req.Pos[1], req.Pos[2], s)
		if err != nil {
			writeWorldError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"pos": req.Pos, "old": old.String(), "new": s.String()})

	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// resolveState parses "id" or "id[k=v,...]" against the registry. A bare id
// takes the block's default state.
func (a *adminAPI) resolveState(raw string) (block.BlockState, error) {
	parsed, err := block.ParseState(raw)
	if err != nil {
		return block.BlockState{}, err
	}
	reg := a.eng.world.Registry()
	if parsed.PropsKey() == "" {
		return block.NewState(reg, parsed.ID())
	}
	return block.WithState(reg, parsed.ID(), parsed.Props())
}

func (a *adminAPI) chunk(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := parseInts(r.URL.Query().Get("pos"), 3)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	pos := store.ChunkPos{X: v[0], Y: v[1], Z: v[2]}
	sum, err := a.eng.world.Summary(pos)
	if err != nil {
		writeWorldError(rw, err)
		return
	}
	resp := struct {
		world.ChunkSummary
		Digest string             `json:"digest,omitempty"`
		Cells  *encoding.CellDump `json:"cells,omitempty"`
	}{ChunkSummary: sum}
	if c, ok := a.eng.world.Chunks().Get(pos); ok {
		if d, err := c.Data(); err == nil {
			d.Read(func(cd *store.ChunkData) {
				resp.Digest = cd.Digest()
				if r.URL.Query().Get("cells") == "1" {
					dump := encoding.EncodeCells(cd)
					resp.Cells = &dump
				}
			})
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) snapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	editedOnly := r.URL.Query().Get("all") != "1"
	path, err := a.snaps.write(editedOnly)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": a.eng.pipeline.Tick(), "path": path})
}

type centerReq struct {
	Center [3]int `json:"center"`
	Radius *int   `json:"radius,omitempty"`
}

func (a *adminAPI) center(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req centerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	if req.Radius != nil {
		if *req.Radius < 0 || *req.Radius > world.MaxLoadRadius {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, fmt.Sprintf("radius must be in [0,%d]", world.MaxLoadRadius))
			return
		}
		a.eng.loader.SetRadius(*req.Radius)
	}
	a.eng.loader.SetCenter(store.ChunkPos{X: req.Center[0], Y: req.Center[1], Z: req.Center[2]})
	c, radius := a.eng.loader.Center()
	writeJSON(rw, http.StatusOK, map[string]any{"center": [3]int{c.X, c.Y, c.Z}, "radius": radius})
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !meshstream.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.NewError(code, msg))
}

func writeWorldError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, world.ErrUnloadedChunk), errors.Is(err, store.ErrUninitialized):
		writeError(rw, http.StatusConflict, protocol.ErrUnloaded, err.Error())
	case errors.Is(err, store.ErrOutOfBounds), errors.Is(err, block.ErrInvalidID), errors.Is(err, block.ErrInvalidState):
		writeError(rw, http.StatusBadRequest, protocol.ErrInvalidTarget, err.Error())
	default:
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
	}
}

// parseInts splits "a,b,c" into exactly n integers.
func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated integers, got %q", n, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
