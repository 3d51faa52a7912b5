package service

import (
	"bytes"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/m-mizutani/gt"
)

func TestFormatValue(t *testing.T) {
	testCases := []struct {
		name  string
		value bigquery.Value
		want  string
	}{
		{name: "null", value: nil, want: ""},
		{name: "string", value: "Thailand", want: "Thailand"},
		{name: "integer", value: int64(2019), want: "2019"},
		{name: "float", value: 76.929, want: "76.929"},
		{name: "bool", value: true, want: "true"},
		{name: "bytes", value: []byte("hi"), want: "aGk="},
		{name: "timestamp", value: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), want: "2020-01-02 03:04:05 UTC"},
		{name: "date", value: civil.Date{Year: 2020, Month: time.March, Day: 4}, want: "2020-03-04"},
		{name: "numeric", value: big.NewRat(3, 2), want: "1.500000000"},
		{name: "repeated", value: []bigquery.Value{int64(1), "a"}, want: `[1,"a"]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.V(t, formatValue(tc.value)).Equal(tc.want)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	rows := &Rows{
		Schema: bigquery.Schema{
			{Name: "country_name", Type: bigquery.StringFieldType},
			{Name: "year", Type: bigquery.IntegerFieldType},
		},
		Values: [][]bigquery.Value{
			{"Korea, Rep.", int64(2019)},
			{`Say "hi"`, nil},
		},
	}

	var buf bytes.Buffer
	gt.NoError(t, WriteCSV(&buf, rows))
	gt.V(t, buf.String()).Equal("country_name,year\n\"Korea, Rep.\",2019\n\"Say \"\"hi\"\"\",\n")
}

func TestWriteCSV_BigNumeric(t *testing.T) {
	rows := &Rows{
		Schema: bigquery.Schema{
			{Name: "numeric", Type: bigquery.NumericFieldType},
			{Name: "bignumeric", Type: bigquery.BigNumericFieldType},
		},
		Values: [][]bigquery.Value{
			{big.NewRat(1, 3), big.NewRat(1, 3)},
		},
	}

	var buf bytes.Buffer
	gt.NoError(t, WriteCSV(&buf, rows))
	gt.V(t, buf.String()).Equal("numeric,bignumeric\n0.333333333,0." + strings.Repeat("3", 38) + "\n")
}

func TestWriteCSV_HeaderOnly(t *testing.T) {
	rows := &Rows{Schema: bigquery.Schema{{Name: "a"}, {Name: "b"}}}

	var buf bytes.Buffer
	gt.NoError(t, WriteCSV(&buf, rows))
	gt.V(t, buf.String()).Equal("a,b\n")
}

func TestWriteCSV_SchemaMismatch(t *testing.T) {
	rows := &Rows{
		Schema: bigquery.Schema{{Name: "a"}, {Name: "b"}},
		Values: [][]bigquery.Value{{"only one"}},
	}

	var buf bytes.Buffer
	err := WriteCSV(&buf, rows)
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("row does not match schema")
}
