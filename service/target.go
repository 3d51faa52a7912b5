package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Country is the filter key of an export target. Code goes into the object name, Name is
// matched against the filter column.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ParseCountry parses "TH:Thailand".
func ParseCountry(s string) (Country, error) {
	code, name, ok := strings.Cut(s, ":")
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if !ok || code == "" || name == "" {
		return Country{}, goerr.New("country must be CODE:Name", goerr.V("country", s), goerr.T(TagInvalidJob))
	}
	return Country{Code: code, Name: name}, nil
}

func (c Country) String() string {
	return c.Code + ":" + c.Name
}

// ExportTarget is one table (optionally filtered by country) materialized as one CSV object.
type ExportTarget struct {
	Table   string
	Country Country
}

// Whole reports whether the target is an unfiltered table extract.
func (t ExportTarget) Whole() bool {
	return t.Country.Code == ""
}

// ObjectName is "<code>_<table>.csv", or "<table>.csv" for whole-table extracts.
func (t ExportTarget) ObjectName() string {
	if t.Whole() {
		return t.Table + ".csv"
	}
	return t.Country.Code + "_" + t.Table + ".csv"
}

func (t ExportTarget) DestinationURI(bucket string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, t.ObjectName())
}

// ExportJob is the set of targets processed in one invocation.
type ExportJob struct {
	Targets []ExportTarget
}

// NewExportJob builds the cross product of tables and countries. Without countries every
// table becomes a whole-table extract. Two targets whose object names are equal ignoring case
// are rejected, since the StarRocks driver lower-cases them into table names.
func NewExportJob(tables []string, countries []Country) (ExportJob, error) {
	if len(tables) == 0 {
		return ExportJob{}, goerr.New("no table to export", goerr.T(TagInvalidJob))
	}

	var targets []ExportTarget
	if len(countries) == 0 {
		for _, table := range tables {
			targets = append(targets, ExportTarget{Table: table})
		}
	} else {
		for _, table := range tables {
			for _, country := range countries {
				targets = append(targets, ExportTarget{Table: table, Country: country})
			}
		}
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t.Table == "" {
			return ExportJob{}, goerr.New("empty table name", goerr.T(TagInvalidJob))
		}
		name := t.ObjectName()
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return ExportJob{}, goerr.New("duplicated object name in export job",
				goerr.V("object", name),
				goerr.T(TagInvalidJob))
		}
		seen[key] = struct{}{}
	}

	return ExportJob{Targets: targets}, nil
}

// Filter narrows the job to the given tables and country codes. Empty lists keep everything.
func (j ExportJob) Filter(tables, codes []string) ExportJob {
	var out []ExportTarget
	for _, t := range j.Targets {
		if len(tables) > 0 && !slices.Contains(tables, t.Table) {
			continue
		}
		if len(codes) > 0 && !slices.Contains(codes, t.Country.Code) {
			continue
		}
		out = append(out, t)
	}
	return ExportJob{Targets: out}
}
