package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"voxelforge.ai/internal/persistence/indexdb"
	"voxelforge.ai/internal/sim/encoding"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

func openDB(c *cli.Context) (*indexdb.ChunkDB, error) {
	path := dbPath(c)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chunk db: %w", err)
	}
	return indexdb.Open(path)
}

func chunksCommand() *cli.Command {
	return &cli.Command{
		Name:  "chunks",
		Usage: "list chunks stored in the chunk db",
		Flags: []cli.Flag{dataFlag, worldFlag, dbFlag},
		Action: func(c *cli.Context) error {
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListChunks(context.Background())
			if err != nil {
				return err
			}
			head := color.New(color.Bold).SprintFunc()
			fmt.Printf("%-16s %4s %7s  %-16s %s\n", head("pos"), head("bits"), head("palette"), head("digest"), head("updated"))
			for _, r := range rows {
				updated := r.UpdatedAt
				if t, err := time.Parse(time.RFC3339Nano, r.UpdatedAt); err == nil {
					updated = humanize.Time(t)
				}
				digest := r.Digest
				if len(digest) > 16 {
					digest = digest[:16]
				}
				fmt.Printf("%-16s %4d %7d  %-16s %s\n", r.Pos, r.Bits, r.Palette, digest, updated)
			}
			fmt.Println(color.HiBlackString("%s chunks", humanize.Comma(int64(len(rows)))))
			return nil
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "print one stored chunk as palette plus RLE cells",
		ArgsUsage: "cx,cy,cz",
		Flags:     []cli.Flag{dataFlag, worldFlag, dbFlag},
		Action: func(c *cli.Context) error {
			v, err := parseVec3(c.Args().First())
			if err != nil {
				return fmt.Errorf("chunk position: %w", err)
			}
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			pos := store.ChunkPos{X: v[0], Y: v[1], Z: v[2]}
			data, ok, err := db.LoadChunk(pos)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("chunk %s is not stored", pos)
			}
			out := struct {
				Pos    store.ChunkPos    `json:"pos"`
				Digest string            `json:"digest"`
				Cells  encoding.CellDump `json:"cells"`
			}{Pos: pos, Digest: data.Digest(), Cells: encoding.EncodeCells(data)}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func editsCommand() *cli.Command {
	return &cli.Command{
		Name:  "edits",
		Usage: "show the most recent block edits",
		Flags: []cli.Flag{dataFlag, worldFlag, dbFlag, &cli.IntFlag{Name: "limit", Value: 20, Usage: "result limit"}},
		Action: func(c *cli.Context) error {
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer db.Close()

			edits, err := db.Edits(context.Background(), c.Int("limit"))
			if err != nil {
				return err
			}
			for _, e := range edits {
				fmt.Printf("#%d tick=%d %s %v %s -> %s\n", e.Seq, e.Tick, color.CyanString(e.Actor), e.Pos,
					color.RedString(e.Old), color.GreenString(e.New))
			}
			return nil
		},
	}
}
