package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bq-source-exporter/api"
	"bq-source-exporter/config"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdServe(build runtimeBuilder) *cli.Command {
	var cfg config.Export
	var serverCfg config.Server

	return &cli.Command{
		Name:  "serve",
		Usage: "Provision the bucket and serve POST /api/export",
		Flags: append(cfg.Flags(), serverCfg.Flags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := build(ctx, &cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.provision(ctx); err != nil {
				return err
			}

			// Release mode is better for production performance
			if os.Getenv("GIN_MODE") == "" {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := &http.Server{
				Addr:              ":" + serverCfg.Port,
				Handler:           api.NewRouter(rt.exporter, rt.job, rt.bucket, serverCfg.APIKey),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("Server starting", "server", &serverCfg)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return goerr.Wrap(err, "failed to start server", goerr.V("port", serverCfg.Port))
				}
				return nil
			case <-ctx.Done():
			}
			slog.Info("Shutting down server...")

			// The server has 5 seconds to finish the request it is currently handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server forced to shutdown", "error", err)
			}

			slog.Info("Server exiting")
			return nil
		},
	}
}
