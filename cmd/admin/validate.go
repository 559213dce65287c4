package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"voxelforge.ai/internal/sim/catalogs"
	"voxelforge.ai/internal/sim/world/mesh"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "load, validate and compile the block and model catalogs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "configs", Value: "./configs", Usage: "config directory"},
			&cli.StringFlag{Name: "schemas", Value: "./schemas", Usage: "json schema directory"},
		},
		Action: func(c *cli.Context) error {
			cats, err := catalogs.Load(c.String("configs"), c.String("schemas"))
			if err != nil {
				return err
			}
			reg, err := cats.Registry()
			if err != nil {
				return err
			}
			compiled, err := mesh.Compile(cats.Models.ByName, cats.ReferencedModels())
			if err != nil {
				return err
			}
			table, err := mesh.BuildModelTable(reg, compiled.Models)
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("ok"))
			fmt.Printf("  blocks:   %d (%s)\n", reg.Len(), cats.Blocks.DefsDigest)
			fmt.Printf("  models:   %d compiled of %d defined (%s)\n", len(compiled.Models), len(cats.Models.ByName), cats.Models.Digest)
			fmt.Printf("  states:   %d with a model\n", len(table))
			fmt.Printf("  textures: %d\n", len(compiled.Textures))
			return nil
		},
	}
}
