package main

import (
	"context"
	"log/slog"

	"bq-source-exporter/config"
	"bq-source-exporter/service"

	"github.com/m-mizutani/goerr/v2"
)

// runtime holds the clients built from the configuration.
type runtime struct {
	job         service.ExportJob
	bucket      string
	provisioner *service.Provisioner
	exporter    *service.Exporter
	closers     []func() error
}

// runtimeBuilder creates the runtime of a command. setup is the production builder.
type runtimeBuilder func(ctx context.Context, cfg *config.Export) (*runtime, error)

// provision ensures the destination bucket. Nothing is exported before it succeeds.
func (r *runtime) provision(ctx context.Context) error {
	return r.provisioner.Ensure(ctx, r.bucket)
}

// runJob provisions the bucket and exports every target once. Failed targets turn into the
// returned error, so the process exits 1.
func runJob(ctx context.Context, rt *runtime) error {
	if err := rt.provision(ctx); err != nil {
		return err
	}

	report := rt.exporter.Run(ctx, rt.job)
	if err := report.Err(); err != nil {
		return goerr.Wrap(err, "export finished with failed targets",
			goerr.V("failed", len(report.Failed())),
			goerr.V("targets", len(report.Results)))
	}

	slog.InfoContext(ctx, "Job execution completed", "bucket", rt.bucket, "targets", len(report.Results))
	return nil
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("Failed to close client", "error", err)
		}
	}
}

func setup(ctx context.Context, cfg *config.Export) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveProjectID(ctx); err != nil {
		return nil, err
	}
	job, err := cfg.Job()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Export configuration", "config", cfg, "targets", len(job.Targets))

	rt := &runtime{job: job, bucket: cfg.Bucket()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	opts := cfg.ClientOptions()

	store, err := service.NewGCSStore(ctx, cfg.ProjectID, cfg.BucketLocation, opts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	bq, err := service.NewBigQueryService(ctx, cfg.ProjectID, cfg.Source(), opts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, bq.Close)

	var driver service.ExportDriver
	switch cfg.Driver {
	case config.DriverStarRocks:
		sr, err := service.NewStarRocksService(ctx, cfg.StarRocks)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, sr.Close)
		driver = service.NewStarRocksDriver(bq, sr, cfg.QueryParams())
	default:
		driver = service.NewGCSDriver(bq, store, rt.bucket, cfg.QueryParams())
	}
	rt.exporter = service.NewExporter(driver)
	rt.provisioner = service.NewProvisioner(store)

	ok = true
	return rt, nil
}
