package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	persistlog "voxelforge.ai/internal/persistence/log"
	"voxelforge.ai/internal/persistence/snapshot"
	"voxelforge.ai/internal/sim/world"
	"voxelforge.ai/internal/sim/world/block"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "undo audited block edits inside a box, writing a new snapshot",
		Flags: []cli.Flag{
			dataFlag, worldFlag,
			&cli.StringFlag{Name: "snapshot", Usage: "snapshot to roll back (default: latest)"},
			&cli.StringFlag{Name: "aabb", Required: true, Usage: "world box x1,y1,z1:x2,y2,z2"},
			&cli.Uint64Flag{Name: "since_tick", Usage: "undo edits from this tick (inclusive)"},
			&cli.Uint64Flag{Name: "to_tick", Usage: "undo edits up to this tick (inclusive; default: snapshot tick)"},
			&cli.StringFlag{Name: "out", Usage: "output snapshot path"},
		},
		Action: rollbackCmd,
	}
}

func rollbackCmd(c *cli.Context) error {
	dir := worldDir(c)
	snapPath := strings.TrimSpace(c.String("snapshot"))
	if snapPath == "" {
		snapPath = latestSnapshot(dir)
	}
	if snapPath == "" {
		return fmt.Errorf("no snapshot found; pass --snapshot or run the server until it writes one")
	}
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	min, max, err := parseAABB(c.String("aabb"))
	if err != nil {
		return fmt.Errorf("bad --aabb: %w", err)
	}
	endTick := c.Uint64("to_tick")
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readAudit(dir, c.Uint64("since_tick"), endTick, min, max)
	if err != nil {
		return fmt.Errorf("read audit: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to roll back")
		return nil
	}
	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		return err
	}

	out := strings.TrimSpace(c.String("out"))
	if out == "" {
		out = filepath.Join(dir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Println(color.GreenString("rollback ok"), fmt.Sprintf("snapshot=%s tick=%d since=%d to=%d entries=%d applied=%d skipped=%d out=%s",
		filepath.Base(snapPath), snap.Header.Tick, c.Uint64("since_tick"), endTick, len(recs), applied, skipped, out))
	return nil
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

// readAudit returns the SET_BLOCK entries in [sinceTick, toTick] inside the
// box, newest first.
func readAudit(worldDir string, sinceTick, toTick uint64, min, max [3]int) ([]auditRec, error) {
	files, err := persistlog.Files(filepath.Join(worldDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	var (
		out []auditRec
		seq uint64
	)
	for _, path := range files {
		entries, err := persistlog.ReadFile[world.AuditEntry](path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, e := range entries {
			seq++
			if e.Action != "SET_BLOCK" || e.Tick < sinceTick || e.Tick > toTick || !withinAABB(e.Pos, min, max) {
				continue
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback writes each record's From state back, newest first, so the
// oldest edit's From wins. Records outside the snapshot's chunks are skipped.
func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int, err error) {
	if snap == nil || len(recs) == 0 {
		return 0, 0, nil
	}
	index := map[store.ChunkPos]int{}
	for i := range snap.Chunks {
		index[snap.Chunks[i].ChunkPos()] = i
	}
	touched := map[int]*store.ChunkData{}

	for _, r := range recs {
		p := r.Entry.Pos
		cp, lp := store.SplitWorld(p[0], p[1], p[2])
		i, ok := index[cp]
		if !ok {
			skipped++
			continue
		}
		from, err := block.ParseState(r.Entry.From)
		if err != nil {
			skipped++
			continue
		}
		data := touched[i]
		if data == nil {
			data, err = store.Unpack(snap.Chunks[i].Packed)
			if err != nil {
				return applied, skipped, fmt.Errorf("chunk %s: %w", cp, err)
			}
			touched[i] = data
		}
		if _, err := data.SetBlock(lp.X, lp.Y, lp.Z, from); err != nil {
			skipped++
			continue
		}
		applied++
	}
	for i, data := range touched {
		ch := &snap.Chunks[i]
		ch.Packed = store.Pack(data)
		ch.Digest = data.Digest()
		ch.Edited = true
	}
	return applied, skipped, nil
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}
