package service

import "context"

// QueryParams is the part of a filter query shared by every target of a job.
type QueryParams struct {
	FilterColumn string
	OrderColumn  string
	RowLimit     int
}

// filterQuery returns the query resolving a filtered target.
func (p QueryParams) filterQuery(t ExportTarget) FilterQuery {
	return FilterQuery{
		Table:   t.Table,
		Column:  p.FilterColumn,
		Value:   t.Country.Name,
		OrderBy: p.OrderColumn,
		Limit:   p.RowLimit,
	}
}

type ExportResult struct {
	GCSPath string
	URL     string
	Table   string
	// Rows is -1 when the rows were written server side and not counted.
	Rows int64
}

type ExportDriver interface {
	Execute(ctx context.Context, target ExportTarget) (ExportResult, error)
}
