package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"voxelforge.ai/internal/sim/world/terrain/store"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Chunks  int    `json:"chunks"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64  `json:"seed"`
	Provider    string `json:"provider"`
	BlocksHash  string `json:"blocks_hash,omitempty"`
	ModelsHash  string `json:"models_hash,omitempty"`
	TickRateHz  int    `json:"tick_rate_hz"`
	LoadRadius  int    `json:"load_radius"`
	LoadCenter  [3]int `json:"load_center"`
	EditedOnly  bool   `json:"edited_only,omitempty"`
	Description string `json:"description,omitempty"`

	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	Pos    [3]int            `json:"pos"`
	Edited bool              `json:"edited,omitempty"`
	Digest string            `json:"digest"`
	Packed store.PackedChunk `json:"packed"`
}

func (c ChunkV1) ChunkPos() store.ChunkPos {
	return store.ChunkPos{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]}
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, all zstd-compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	snap.Header.Version = Version
	snap.Header.Chunks = len(snap.Chunks)

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
