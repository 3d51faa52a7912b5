package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Exporter runs the targets of a job one after another. A failing target is logged and
// recorded, and the remaining targets still run.
type Exporter struct {
	driver ExportDriver
}

func NewExporter(driver ExportDriver) *Exporter {
	return &Exporter{driver: driver}
}

type TargetResult struct {
	Target ExportTarget
	Result ExportResult
	Err    error
}

type Report struct {
	Results []TargetResult
}

func (r *Report) Failed() []TargetResult {
	var failed []TargetResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins the errors of every failed target, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

func (x *Exporter) Run(ctx context.Context, job ExportJob) *Report {
	report := &Report{Results: make([]TargetResult, 0, len(job.Targets))}

	for i, target := range job.Targets {
		if err := ctx.Err(); err != nil {
			for _, rest := range job.Targets[i:] {
				report.Results = append(report.Results, TargetResult{
					Target: rest,
					Err:    targetError(err, "export cancelled", rest),
				})
			}
			slog.WarnContext(ctx, "Export cancelled", "remaining", len(job.Targets)-i, "error", err)
			break
		}

		started := time.Now()
		res, err := x.driver.Execute(ctx, target)
		if err != nil {
			err = targetError(err, "failed to export target", target)
			slog.ErrorContext(ctx, "Export failed",
				"table", target.Table,
				"country", target.Country.Code,
				"object", target.ObjectName(),
				"error", err,
			)
			report.Results = append(report.Results, TargetResult{Target: target, Err: err})
			continue
		}

		slog.InfoContext(ctx, "Exported",
			"table", target.Table,
			"country", target.Country.Code,
			"gcs_path", res.GCSPath,
			"starrocks_table", res.Table,
			"rows", res.Rows,
			"elapsed", time.Since(started),
		)
		report.Results = append(report.Results, TargetResult{Target: target, Result: res})
	}

	slog.InfoContext(ctx, "Export job finished",
		"targets", len(job.Targets),
		"failed", len(report.Failed()),
	)
	return report
}

func targetError(err error, msg string, t ExportTarget) error {
	return goerr.Wrap(err, msg,
		goerr.V("table", t.Table),
		goerr.V("country", t.Country.Code),
		goerr.V("object", t.ObjectName()),
		goerr.T(TagExportTargetFailure))
}
