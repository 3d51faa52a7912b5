package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"bq-source-exporter/service"

	"github.com/gin-gonic/gin"
)

type JobRunner interface {
	Run(ctx context.Context, job service.ExportJob) *service.Report
}

// ExportRequest narrows the configured job. Empty lists select every table or country.
type ExportRequest struct {
	Tables    []string `json:"tables"`
	Countries []string `json:"countries"`
}

type TargetResponse struct {
	Table          string `json:"table"`
	Country        string `json:"country,omitempty"`
	Object         string `json:"object"`
	GCSPath        string `json:"gcs_path,omitempty"`
	URL            string `json:"url,omitempty"`
	StarRocksTable string `json:"starrocks_table,omitempty"`
	Rows           int64  `json:"rows,omitempty"`
	Error          string `json:"error,omitempty"`
}

type ExportResponse struct {
	Message string           `json:"message"`
	Bucket  string           `json:"bucket"`
	Failed  int              `json:"failed"`
	Results []TargetResponse `json:"results"`
}

// ExportHandler runs at most one export at a time. A request arriving while a run is in
// progress gets 409 Conflict.
func ExportHandler(runner JobRunner, job service.ExportJob, bucket string) gin.HandlerFunc {
	var running sync.Mutex

	return func(c *gin.Context) {
		var req ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		selected := job.Filter(req.Tables, req.Countries)
		if len(selected.Targets) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no export target matches the request"})
			return
		}

		if !running.TryLock() {
			slog.WarnContext(c.Request.Context(), "Export already running, request rejected")
			c.JSON(http.StatusConflict, gin.H{"error": "export already running"})
			return
		}
		defer running.Unlock()

		slog.InfoContext(c.Request.Context(), "Received export request",
			"tables", req.Tables,
			"countries", req.Countries,
			"targets", len(selected.Targets),
		)

		report := runner.Run(c.Request.Context(), selected)
		resp := ExportResponse{
			Message: "OK",
			Bucket:  bucket,
			Failed:  len(report.Failed()),
			Results: make([]TargetResponse, 0, len(report.Results)),
		}
		for _, r := range report.Results {
			tr := TargetResponse{
				Table:          r.Target.Table,
				Country:        r.Target.Country.Code,
				Object:         r.Target.ObjectName(),
				GCSPath:        r.Result.GCSPath,
				URL:            r.Result.URL,
				StarRocksTable: r.Result.Table,
				Rows:           r.Result.Rows,
			}
			if r.Err != nil {
				tr.Error = r.Err.Error()
			}
			resp.Results = append(resp.Results, tr)
		}

		if resp.Failed > 0 {
			resp.Message = "Some targets failed"
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
