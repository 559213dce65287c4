package world

import "go.uber.org/atomic"

// Stats are cumulative pipeline counters, readable from any goroutine.
type Stats struct {
	Ticks         atomic.Uint64
	GenSpawned    atomic.Uint64
	Installed     atomic.Uint64
	MeshSpawned   atomic.Uint64
	Meshed        atomic.Uint64
	EmptyMeshes   atomic.Uint64
	Uploaded      atomic.Uint64
	UploadedBytes atomic.Uint64
	Despawned     atomic.Uint64
	Discarded     atomic.Uint64
	Saved         atomic.Uint64
	SaveDropped   atomic.Uint64
	Errors        atomic.Uint64
}

// StatsSnapshot is a plain copy of Stats.
type StatsSnapshot struct {
	Ticks         uint64 `json:"ticks"`
	GenSpawned    uint64 `json:"gen_spawned"`
	Installed     uint64 `json:"installed"`
	MeshSpawned   uint64 `json:"mesh_spawned"`
	Meshed        uint64 `json:"meshed"`
	EmptyMeshes   uint64 `json:"empty_meshes"`
	Uploaded      uint64 `json:"uploaded"`
	UploadedBytes uint64 `json:"uploaded_bytes"`
	Despawned     uint64 `json:"despawned"`
	Discarded     uint64 `json:"discarded"`
	Saved         uint64 `json:"saved"`
	SaveDropped   uint64 `json:"save_dropped"`
	Errors        uint64 `json:"errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ticks:         s.Ticks.Load(),
		GenSpawned:    s.GenSpawned.Load(),
		Installed:     s.Installed.Load(),
		MeshSpawned:   s.MeshSpawned.Load(),
		Meshed:        s.Meshed.Load(),
		EmptyMeshes:   s.EmptyMeshes.Load(),
		Uploaded:      s.Uploaded.Load(),
		UploadedBytes: s.UploadedBytes.Load(),
		Despawned:     s.Despawned.Load(),
		Discarded:     s.Discarded.Load(),
		Saved:         s.Saved.Load(),
		SaveDropped:   s.SaveDropped.Load(),
		Errors:        s.Errors.Load(),
	}
}
