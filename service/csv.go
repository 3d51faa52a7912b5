package service

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
)

// Rows is a materialized query result.
type Rows struct {
	Schema bigquery.Schema
	Values [][]bigquery.Value
}

func (r *Rows) Header() []string {
	header := make([]string, len(r.Schema))
	for i, f := range r.Schema {
		header[i] = f.Name
	}
	return header
}

// WriteCSV writes a header row followed by one record per row.
func WriteCSV(w io.Writer, rows *Rows) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rows.Header()); err != nil {
		return goerr.Wrap(err, "failed to write csv header")
	}

	record := make([]string, len(rows.Schema))
	for i, row := range rows.Values {
		if len(row) != len(rows.Schema) {
			return goerr.New("row does not match schema",
				goerr.V("row", i),
				goerr.V("columns", len(row)),
				goerr.V("schema", len(rows.Schema)))
		}
		for j, v := range row {
			record[j] = formatCell(rows.Schema[j], v)
		}
		if err := cw.Write(record); err != nil {
			return goerr.Wrap(err, "failed to write csv record", goerr.V("row", i))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return goerr.Wrap(err, "failed to flush csv")
	}
	return nil
}

// formatCell renders v as a value of column f. BIGNUMERIC keeps its 38 fractional digits.
func formatCell(f *bigquery.FieldSchema, v bigquery.Value) string {
	if r, ok := v.(*big.Rat); ok && f != nil && f.Type == bigquery.BigNumericFieldType {
		return bigquery.BigNumericString(r)
	}
	return formatValue(v)
}

// formatValue renders a cell the way a BigQuery CSV extract does.
func formatValue(v bigquery.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.999999 UTC")
	case *big.Rat:
		return bigquery.NumericString(x)
	case []bigquery.Value, map[string]bigquery.Value:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	case fmt.Stringer:
		// civil.Date, civil.Time, civil.DateTime
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
