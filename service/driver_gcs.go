package service

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// GCSDriver writes each target as a CSV object into the destination bucket.
type GCSDriver struct {
	warehouse Warehouse
	store     ObjectStore
	bucket    string
	params    QueryParams
}

func NewGCSDriver(warehouse Warehouse, store ObjectStore, bucket string, params QueryParams) *GCSDriver {
	return &GCSDriver{
		warehouse: warehouse,
		store:     store,
		bucket:    bucket,
		params:    params,
	}
}

func (d *GCSDriver) Execute(ctx context.Context, target ExportTarget) (ExportResult, error) {
	object := target.ObjectName()
	res := ExportResult{
		GCSPath: target.DestinationURI(d.bucket),
		URL:     d.store.ObjectURL(d.bucket, object),
		Rows:    -1,
	}

	if target.Whole() {
		if err := d.warehouse.ExtractTable(ctx, target.Table, res.GCSPath); err != nil {
			return ExportResult{}, err
		}
		return res, nil
	}

	rows, err := d.warehouse.Query(ctx, d.params.filterQuery(target))
	if err != nil {
		return ExportResult{}, err
	}

	// Cancelling the writer context before Close discards a partially written object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := d.store.PutObject(wctx, d.bucket, object)
	if err := WriteCSV(w, rows); err != nil {
		cancel()
		_ = w.Close()
		return ExportResult{}, err
	}
	if err := w.Close(); err != nil {
		return ExportResult{}, goerr.Wrap(err, "failed to write object", goerr.V("uri", res.GCSPath))
	}

	res.Rows = int64(len(rows.Values))
	return res, nil
}
