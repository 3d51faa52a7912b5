package service

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/m-mizutani/gt"
)

func TestStarRocksConfig(t *testing.T) {
	cfg := StarRocksConfig{Host: "sr.local", Port: "9030", User: "loader", Password: "p@ss", Database: "health"}
	gt.NoError(t, cfg.Validate())
	gt.S(t, cfg.DSN()).HasPrefix("loader:p@ss@tcp(sr.local:9030)/health?")
	gt.S(t, cfg.DSN()).Contains("parseTime=true")

	gt.Error(t, StarRocksConfig{Host: "sr.local"}.Validate())
}

func TestBuildCreateTable(t *testing.T) {
	ddl, err := buildCreateTable(lifeExpectancySchema, "th_mortality_life_expectancy")
	gt.NoError(t, err)
	gt.S(t, ddl).Contains("CREATE TABLE IF NOT EXISTS th_mortality_life_expectancy")
	gt.S(t, ddl).Contains("`country_name` VARCHAR(1024), `country_code` VARCHAR(1024), `year` BIGINT, `life_expectancy` DOUBLE")
	gt.S(t, ddl).Contains("DUPLICATE KEY (`country_name`)")

	_, err = buildCreateTable(nil, "t")
	gt.Error(t, err)

	_, err = buildCreateTable(lifeExpectancySchema, "t; DROP TABLE x")
	gt.Error(t, err)

	_, err = buildCreateTable(bigquery.Schema{{Name: "tags", Type: bigquery.StringFieldType, Repeated: true}}, "t")
	gt.Error(t, err)
}

func TestBuildBatchInsert(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "country_name", Type: bigquery.StringFieldType},
		{Name: "year", Type: bigquery.IntegerFieldType},
	}
	stmt, args := buildBatchInsert("th_x", schema, [][]bigquery.Value{
		{"Thailand", int64(2019)},
		{"Thailand", int64(2018)},
	})
	gt.V(t, stmt).Equal("INSERT INTO th_x (`country_name`, `year`) VALUES (?, ?), (?, ?)")
	gt.V(t, args).Equal([]any{"Thailand", int64(2019), "Thailand", int64(2018)})
}

func TestConvertValues(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	schema := bigquery.Schema{
		{Name: "a", Type: bigquery.StringFieldType},
		{Name: "b", Type: bigquery.TimestampFieldType},
		{Name: "c", Type: bigquery.DateFieldType},
		{Name: "d", Type: bigquery.NumericFieldType},
		{Name: "e", Type: bigquery.BigNumericFieldType},
	}
	got := convertValues(schema, []bigquery.Value{
		nil,
		ts,
		civil.Date{Year: 2020, Month: time.January, Day: 1},
		big.NewRat(1, 4),
		big.NewRat(1, 3),
	})
	gt.V(t, got).Equal([]any{nil, ts, "2020-01-01", "0.250000000", "0.33333333333333333333333333333333333333"})
}

func TestStarRocksTableName(t *testing.T) {
	gt.V(t, starRocksTableName(ExportTarget{Table: "Mortality", Country: Country{Code: "TH", Name: "Thailand"}})).
		Equal("th_mortality")
	gt.V(t, starRocksTableName(ExportTarget{Table: "top_terms"})).Equal("top_terms")
}
