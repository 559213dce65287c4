package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"voxelforge.ai/internal/persistence/indexdb"
	"voxelforge.ai/internal/persistence/snapshot"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "inspect, import or request world snapshots",
		Subcommands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "summarize a snapshot file",
				ArgsUsage: "[path]",
				Flags:     []cli.Flag{dataFlag, worldFlag, &cli.BoolFlag{Name: "header", Usage: "read only the header line"}},
				Action:    snapshotInspect,
			},
			{
				Name:      "import",
				Usage:     "write every chunk of a snapshot into the chunk db",
				ArgsUsage: "[path]",
				Flags:     []cli.Flag{dataFlag, worldFlag, dbFlag},
				Action:    snapshotImport,
			},
			{
				Name:   "request",
				Usage:  "ask a running server to write a snapshot now",
				Flags:  []cli.Flag{urlFlag, &cli.BoolFlag{Name: "all", Usage: "include unedited chunks"}},
				Action: snapshotRequest,
			},
		},
	}
}

func snapshotPath(c *cli.Context) (string, error) {
	if p := strings.TrimSpace(c.Args().First()); p != "" {
		return p, nil
	}
	if p := latestSnapshot(worldDir(c)); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no snapshot found under %s", worldDir(c))
}

func snapshotInspect(c *cli.Context) error {
	path, err := snapshotPath(c)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if c.Bool("header") {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			return err
		}
		fmt.Printf("world=%s tick=%d chunks=%d version=%d size=%s\n", h.WorldID, h.Tick, h.Chunks, h.Version, humanize.Bytes(uint64(fi.Size())))
		return nil
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	var edited, single int
	bits := map[int]int{}
	for _, ch := range snap.Chunks {
		if ch.Edited {
			edited++
		}
		if ch.Packed.Bits == 0 {
			single++
		}
		bits[ch.Packed.Bits]++
	}
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint(path), color.HiBlackString("(%s, modified %s)", humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime())))
	fmt.Printf("  world:     %s\n", snap.Header.WorldID)
	fmt.Printf("  tick:      %s (%s at %d Hz)\n", humanize.Comma(int64(snap.Header.Tick)), tickDuration(snap.Header.Tick, snap.TickRateHz), snap.TickRateHz)
	fmt.Printf("  worldgen:  %s seed=%d\n", snap.Provider, snap.Seed)
	fmt.Printf("  loader:    center=%v radius=%d\n", snap.LoadCenter, snap.LoadRadius)
	fmt.Printf("  chunks:    %d (edited %d, single-state %d, edited-only=%v)\n", len(snap.Chunks), edited, single, snap.EditedOnly)
	keys := make([]int, 0, len(bits))
	for k := range bits {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fmt.Printf("    bits=%-2d %d\n", k, bits[k])
	}
	if snap.BlocksHash != "" {
		fmt.Printf("  blocks:    %s\n", snap.BlocksHash)
	}
	return nil
}

func tickDuration(ticks uint64, hz int) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(ticks) * time.Second / time.Duration(hz)
}

func snapshotImport(c *cli.Context) error {
	path, err := snapshotPath(c)
	if err != nil {
		return err
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	db, err := indexdb.Open(dbPath(c))
	if err != nil {
		return err
	}
	defer db.Close()

	var dropped int
	for _, ch := range snap.Chunks {
		if !db.SaveChunk(ch.ChunkPos(), ch.Packed) {
			dropped++
		}
	}
	if !db.Flush(time.Minute) {
		return fmt.Errorf("chunk db flush timed out")
	}
	if dropped > 0 {
		return fmt.Errorf("%d of %d chunks were dropped by a full write queue", dropped, len(snap.Chunks))
	}
	fmt.Println(color.GreenString("imported %d chunks from tick %d into %s", len(snap.Chunks), snap.Header.Tick, dbPath(c)))
	return nil
}
