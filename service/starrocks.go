package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/go-sql-driver/mysql"
	"github.com/m-mizutani/goerr/v2"
)

const defaultStarRocksBatchSize = 1000

type StarRocksConfig struct {
	Host      string
	Port      string
	User      string
	Password  string `masq:"secret"`
	Database  string
	BatchSize int
}

func (c StarRocksConfig) Validate() error {
	if c.Host == "" || c.Port == "" || c.User == "" || c.Database == "" {
		return goerr.New("missing StarRocks config: require host, port, user and database")
	}
	return nil
}

func (c StarRocksConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + c.Port
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type StarRocksService struct {
	db        *sql.DB
	batchSize int
}

func NewStarRocksService(ctx context.Context, cfg StarRocksConfig) (*StarRocksService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open StarRocks connection")
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to connect to StarRocks", goerr.V("addr", cfg.Host+":"+cfg.Port))
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultStarRocksBatchSize
	}

	return &StarRocksService{
		db:        db,
		batchSize: batchSize,
	}, nil
}

func (s *StarRocksService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadRows creates the table from the schema if it doesn't exist, then replaces its content
// with rows.
func (s *StarRocksService) LoadRows(ctx context.Context, rows *Rows, table string) (int64, error) {
	if err := s.ensureTable(ctx, rows.Schema, table); err != nil {
		return 0, goerr.Wrap(err, "failed to ensure StarRocks table", goerr.V("table", table))
	}

	n, err := s.replaceRows(ctx, rows, table)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to insert rows into StarRocks", goerr.V("table", table))
	}
	return n, nil
}

func (s *StarRocksService) ensureTable(ctx context.Context, schema bigquery.Schema, table string) error {
	ddl, err := buildCreateTable(schema, table)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ensuring StarRocks table", "table", table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	return nil
}

func buildCreateTable(schema bigquery.Schema, table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", goerr.New("invalid StarRocks table name", goerr.V("table", table))
	}

	// Basic duplicate-key model using first column as key
	if len(schema) == 0 {
		return "", goerr.New("empty BigQuery schema")
	}

	var cols []string
	for _, f := range schema {
		if f.Repeated || f.Type == bigquery.RecordFieldType {
			return "", goerr.New("unsupported complex type", goerr.V("column", f.Name))
		}
		cols = append(cols, fmt.Sprintf("`%s` %s", f.Name, mapSRType(f)))
	}
	colDDL := strings.Join(cols, ", ")
	dupKey := fmt.Sprintf("`%s`", schema[0].Name)

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s
		)
		ENGINE=OLAP
		DUPLICATE KEY (%s)
		DISTRIBUTED BY HASH(%s) BUCKETS 8
		PROPERTIES (
			"replication_num" = "1"
		)`, table, colDDL, dupKey, dupKey), nil
}

// replaceRows truncates the table and inserts rows in batches within one transaction.
func (s *StarRocksService) replaceRows(ctx context.Context, rows *Rows, table string) (total int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
		return 0, err
	}

	for start := 0; start < len(rows.Values); start += s.batchSize {
		end := min(start+s.batchSize, len(rows.Values))
		stmt, args := buildBatchInsert(table, rows.Schema, rows.Values[start:end])
		if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, err
		}
		total += int64(end - start)
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildBatchInsert(table string, schema bigquery.Schema, batch [][]bigquery.Value) (string, []any) {
	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		cols = append(cols, fmt.Sprintf("`%s`", f.Name))
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	valGroups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*len(cols))
	for i := range batch {
		valGroups[i] = group
		args = append(args, convertValues(schema, batch[i])...)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(valGroups, ", "))
	return stmt, args
}

// mapSRType maps BigQuery field types to StarRocks types.
func mapSRType(f *bigquery.FieldSchema) string {
	switch f.Type {
	case bigquery.StringFieldType:
		return "VARCHAR(1024)"
	case bigquery.BytesFieldType:
		return "VARBINARY(1024)"
	case bigquery.IntegerFieldType:
		return "BIGINT"
	case bigquery.FloatFieldType:
		return "DOUBLE"
	case bigquery.BooleanFieldType:
		return "BOOLEAN"
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return "DATETIME"
	case bigquery.DateFieldType:
		return "DATE"
	case bigquery.TimeFieldType:
		return "VARCHAR(64)"
	case bigquery.NumericFieldType:
		return "DECIMAL(38,9)"
	case bigquery.GeographyFieldType:
		return "VARCHAR(2048)"
	case bigquery.JSONFieldType:
		return "JSON"
	default:
		return "VARCHAR(1024)"
	}
}

// convertValues converts BigQuery row values into types acceptable by the MySQL driver.
// civil dates, NUMERIC, BIGNUMERIC and JSON values are sent in their textual form.
func convertValues(schema bigquery.Schema, values []bigquery.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil, string, int64, float64, bool, []byte, time.Time:
			out[i] = x
		default:
			var f *bigquery.FieldSchema
			if i < len(schema) {
				f = schema[i]
			}
			out[i] = formatCell(f, x)
		}
	}
	return out
}
