package main

import (
	"context"
	"log/slog"
	"os"

	"bq-source-exporter/config"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	os.Exit(run(context.Background(), newApp(setup), os.Args))
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, app *cli.Command, args []string) int {
	if err := app.Run(ctx, args); err != nil {
		slog.Error("Exporter failed", "error", err)
		return 1
	}
	return 0
}

func newApp(build runtimeBuilder) *cli.Command {
	var loggerCfg config.Logger
	var closer func()

	return &cli.Command{
		Name:  "bq-source-exporter",
		Usage: "Provision <project>-source bucket and export BigQuery tables into it as CSV",
		Flags: loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			closer = f
			if err != nil {
				return ctx, err
			}
			slog.Debug("base options", "logger", loggerCfg)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdRun(build),
			cmdServe(build),
		},
	}
}
