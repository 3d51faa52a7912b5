package main

import (
	"context"

	"bq-source-exporter/config"

	"github.com/urfave/cli/v3"
)

func cmdRun(build runtimeBuilder) *cli.Command {
	var cfg config.Export

	return &cli.Command{
		Name:  "run",
		Usage: "Provision the bucket and export every target once",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := build(ctx, &cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runJob(ctx, rt)
		},
	}
}
