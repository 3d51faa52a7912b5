package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Warehouse is the remote data source of the export.
type Warehouse interface {
	// ExtractTable dumps a whole table as CSV to a gs:// URI.
	ExtractTable(ctx context.Context, table, destinationURI string) error
	Query(ctx context.Context, q FilterQuery) (*Rows, error)
}

// FilterQuery selects the most recent Limit rows of Table whose Column equals Value, ordered
// by OrderBy descending. An empty Column reads the whole table and a zero Limit disables the
// limit.
type FilterQuery struct {
	Table   string
	Column  string
	Value   string
	OrderBy string
	Limit   int
}

// SourceDataset locates the tables to export.
type SourceDataset struct {
	Project  string
	Dataset  string
	Location string
}

type BigQueryService struct {
	client *bigquery.Client
	source SourceDataset
}

var _ Warehouse = (*BigQueryService)(nil)

func NewBigQueryService(ctx context.Context, projectID string, source SourceDataset, opts ...option.ClientOption) (*BigQueryService, error) {
	if source.Project == "" {
		source.Project = projectID
	}
	if err := validateSource(source); err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create bigquery client", goerr.V("project_id", projectID))
	}
	return &BigQueryService{
		client: client,
		source: source,
	}, nil
}

func (s *BigQueryService) Close() error {
	return s.client.Close()
}

func (s *BigQueryService) ExtractTable(ctx context.Context, table, destinationURI string) error {
	if !tableNamePattern.MatchString(table) {
		return goerr.New("invalid table name", goerr.V("table", table))
	}

	gcsRef := bigquery.NewGCSReference(destinationURI)
	gcsRef.DestinationFormat = bigquery.CSV
	gcsRef.FieldDelimiter = ","
	gcsRef.Compression = bigquery.None

	extractor := s.client.DatasetInProject(s.source.Project, s.source.Dataset).Table(table).ExtractorTo(gcsRef)
	extractor.Location = s.source.Location

	job, err := extractor.Run(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to start extract job", goerr.V("table", table))
	}

	slog.InfoContext(ctx, "Extract job submitted", "job_id", job.ID(), "table", table, "uri", destinationURI)

	status, err := job.Wait(ctx)
	if err != nil {
		return goerr.Wrap(err, "extract job failed during execution", goerr.V("job_id", job.ID()))
	}
	if err := status.Err(); err != nil {
		return goerr.Wrap(err, "extract job completed with error", goerr.V("job_id", job.ID()))
	}
	return nil
}

func (s *BigQueryService) Query(ctx context.Context, fq FilterQuery) (*Rows, error) {
	sql, params, err := buildFilterQuery(s.source, fq)
	if err != nil {
		return nil, err
	}

	q := s.client.Query(sql)
	q.Location = s.source.Location
	q.Parameters = params

	slog.DebugContext(ctx, "Running query", "sql", sql, "value", fq.Value, "limit", fq.Limit)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to execute query on BigQuery", goerr.V("table", fq.Table))
	}

	var rows [][]bigquery.Value
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read query result", goerr.V("table", fq.Table))
		}
		rows = append(rows, values)
	}

	return &Rows{Schema: it.Schema, Values: rows}, nil
}

var (
	projectPattern   = regexp.MustCompile(`^[a-z][a-z0-9.:\-]*[a-z0-9]$`)
	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func validateSource(src SourceDataset) error {
	if !projectPattern.MatchString(src.Project) {
		return goerr.New("invalid source project", goerr.V("project", src.Project))
	}
	if !tableNamePattern.MatchString(src.Dataset) {
		return goerr.New("invalid source dataset", goerr.V("dataset", src.Dataset))
	}
	return nil
}

// buildFilterQuery renders the statement for fq. Identifiers cannot be bound, so they are
// validated; the filter value and the limit are passed as query parameters.
func buildFilterQuery(src SourceDataset, fq FilterQuery) (string, []bigquery.QueryParameter, error) {
	if err := validateSource(src); err != nil {
		return "", nil, err
	}
	for _, ident := range []string{fq.Table, fq.Column, fq.OrderBy} {
		if ident != "" && !tableNamePattern.MatchString(ident) {
			return "", nil, goerr.New("invalid identifier in query", goerr.V("identifier", ident))
		}
	}
	if fq.Table == "" {
		return "", nil, goerr.New("table is required")
	}

	sql := fmt.Sprintf("SELECT * FROM `%s.%s.%s`", src.Project, src.Dataset, fq.Table)
	var params []bigquery.QueryParameter
	if fq.Column != "" {
		sql += fmt.Sprintf(" WHERE `%s` = @filter_value", fq.Column)
		params = append(params, bigquery.QueryParameter{Name: "filter_value", Value: fq.Value})
	}
	if fq.OrderBy != "" {
		sql += fmt.Sprintf(" ORDER BY `%s` DESC", fq.OrderBy)
	}
	if fq.Limit > 0 {
		sql += " LIMIT @row_limit"
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: int64(fq.Limit)})
	}
	return sql, params, nil
}
