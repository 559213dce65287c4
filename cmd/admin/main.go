package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	dataFlag  = &cli.StringFlag{Name: "data", Value: "./data", Usage: "runtime data directory"}
	worldFlag = &cli.StringFlag{Name: "world", Value: "world_1", Usage: "world id"}
	dbFlag    = &cli.StringFlag{Name: "db", Usage: "chunk db path (default: <data>/worlds/<world>/index/world.sqlite)"}
	urlFlag   = &cli.StringFlag{Name: "url", Value: "http://127.0.0.1:8080", Usage: "server base url"}
)

func main() {
	app := &cli.App{
		Name:  "admin",
		Usage: "inspect and repair voxelforge worlds",
		Commands: []*cli.Command{
			{
				Name:   "worlds",
				Usage:  "list worlds under the data directory",
				Flags:  []cli.Flag{dataFlag},
				Action: worldsCmd,
			},
			chunksCommand(),
			dumpCommand(),
			editsCommand(),
			snapshotCommand(),
			rollbackCommand(),
			validateCommand(),
			stateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(color.RedString("%v", err))
	}
}

func worldsCmd(c *cli.Context) error {
	entries, err := os.ReadDir(filepath.Join(c.String("data"), "worlds"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
	return nil
}

func worldDir(c *cli.Context) string {
	return filepath.Join(c.String("data"), "worlds", c.String("world"))
}

func dbPath(c *cli.Context) string {
	if p := strings.TrimSpace(c.String("db")); p != "" {
		return p
	}
	return filepath.Join(worldDir(c), "index", "world.sqlite")
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
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
	return best
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
