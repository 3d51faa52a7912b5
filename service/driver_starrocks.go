package service

import (
	"context"
	"strings"
)

// StarRocksDriver loads each target into a StarRocks table named after its object.
type StarRocksDriver struct {
	warehouse Warehouse
	sr        *StarRocksService
	params    QueryParams
}

func NewStarRocksDriver(warehouse Warehouse, sr *StarRocksService, params QueryParams) *StarRocksDriver {
	return &StarRocksDriver{warehouse: warehouse, sr: sr, params: params}
}

func (d *StarRocksDriver) Execute(ctx context.Context, target ExportTarget) (ExportResult, error) {
	fq := FilterQuery{Table: target.Table}
	if !target.Whole() {
		fq = d.params.filterQuery(target)
	}

	rows, err := d.warehouse.Query(ctx, fq)
	if err != nil {
		return ExportResult{}, err
	}

	table := starRocksTableName(target)
	n, err := d.sr.LoadRows(ctx, rows, table)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Table: table, Rows: n}, nil
}

// starRocksTableName is the object name without extension, lower-cased.
func starRocksTableName(t ExportTarget) string {
	return strings.ToLower(strings.TrimSuffix(t.ObjectName(), ".csv"))
}
