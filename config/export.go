package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bq-source-exporter/service"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

var TagInvalidConfig = goerr.NewTag("invalid_config")

const (
	DriverGCS       = "GCS"
	DriverStarRocks = "STARROCKS"
)

// Export holds everything the provision and export phases need. It is filled from flags
// and environment variables and passed to the constructors explicitly.
type Export struct {
	ProjectID      string
	Credentials    string
	SourceProject  string
	Dataset        string
	Location       string
	BucketLocation string
	Tables         []string
	Countries      []string
	FilterColumn   string
	OrderColumn    string
	RowLimit       int
	Driver         string
	StarRocks      service.StarRocksConfig
}

func (x *Export) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project-id",
			Usage:       "Google Cloud project ID, detected from credentials if empty",
			Category:    "Google Cloud",
			Destination: &x.ProjectID,
			Sources:     cli.EnvVars("GCP_PROJECT_ID", "PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "credentials",
			Usage:       "Service account credential file",
			Category:    "Google Cloud",
			Destination: &x.Credentials,
			Sources:     cli.EnvVars("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		&cli.StringFlag{
			Name:        "source-project",
			Usage:       "Project of the source dataset (default: project ID)",
			Category:    "Source",
			Destination: &x.SourceProject,
			Sources:     cli.EnvVars("EXPORT_SOURCE_PROJECT"),
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "Source BigQuery dataset",
			Category:    "Source",
			Destination: &x.Dataset,
			Sources:     cli.EnvVars("EXPORT_DATASET"),
		},
		&cli.StringFlag{
			Name:        "location",
			Usage:       "BigQuery job location",
			Category:    "Source",
			Value:       "US",
			Destination: &x.Location,
			Sources:     cli.EnvVars("EXPORT_LOCATION"),
		},
		&cli.StringSliceFlag{
			Name:        "table",
			Aliases:     []string{"t"},
			Usage:       "Table to export (repeatable)",
			Category:    "Source",
			Destination: &x.Tables,
			Sources:     cli.EnvVars("EXPORT_TABLES"),
		},
		&cli.StringSliceFlag{
			Name:        "country",
			Aliases:     []string{"c"},
			Usage:       "Filter key as CODE:Name (repeatable, or comma separated). Without any, whole tables are extracted",
			Category:    "Source",
			Destination: &x.Countries,
			Sources:     cli.EnvVars("EXPORT_COUNTRIES"),
		},
		&cli.StringFlag{
			Name:        "filter-column",
			Usage:       "Column matched against the country name",
			Category:    "Source",
			Value:       "country_name",
			Destination: &x.FilterColumn,
			Sources:     cli.EnvVars("EXPORT_FILTER_COLUMN"),
		},
		&cli.StringFlag{
			Name:        "order-column",
			Usage:       "Column ordering filtered rows, most recent first",
			Category:    "Source",
			Value:       "year",
			Destination: &x.OrderColumn,
			Sources:     cli.EnvVars("EXPORT_ORDER_COLUMN"),
		},
		&cli.IntFlag{
			Name:        "row-limit",
			Usage:       "Maximum rows per filtered export",
			Category:    "Source",
			Value:       100,
			Destination: &x.RowLimit,
			Sources:     cli.EnvVars("EXPORT_ROW_LIMIT"),
		},
		&cli.StringFlag{
			Name:        "bucket-location",
			Usage:       "Location of the destination bucket",
			Category:    "Destination",
			Value:       "US",
			Destination: &x.BucketLocation,
			Sources:     cli.EnvVars("EXPORT_BUCKET_LOCATION"),
		},
		&cli.StringFlag{
			Name:        "driver",
			Usage:       "Export driver [GCS|STARROCKS]",
			Category:    "Destination",
			Value:       DriverGCS,
			Destination: &x.Driver,
			Sources:     cli.EnvVars("EXPORT_DRIVER"),
		},
		&cli.StringFlag{
			Name:        "starrocks-host",
			Category:    "StarRocks",
			Destination: &x.StarRocks.Host,
			Sources:     cli.EnvVars("STARROCKS_HOST"),
		},
		&cli.StringFlag{
			Name:        "starrocks-port",
			Category:    "StarRocks",
			Value:       "9030",
			Destination: &x.StarRocks.Port,
			Sources:     cli.EnvVars("STARROCKS_PORT"),
		},
		&cli.StringFlag{
			Name:        "starrocks-user",
			Category:    "StarRocks",
			Destination: &x.StarRocks.User,
			Sources:     cli.EnvVars("STARROCKS_USER"),
		},
		&cli.StringFlag{
			Name:        "starrocks-password",
			Category:    "StarRocks",
			Destination: &x.StarRocks.Password,
			Sources:     cli.EnvVars("STARROCKS_PASSWORD"),
		},
		&cli.StringFlag{
			Name:        "starrocks-db",
			Category:    "StarRocks",
			Destination: &x.StarRocks.Database,
			Sources:     cli.EnvVars("STARROCKS_DB"),
		},
		&cli.IntFlag{
			Name:        "starrocks-batch-size",
			Category:    "StarRocks",
			Value:       1000,
			Destination: &x.StarRocks.BatchSize,
			Sources:     cli.EnvVars("STARROCKS_BATCH_SIZE"),
		},
	}
}

func (x *Export) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", x.ProjectID),
		slog.String("source_project", x.SourceProject),
		slog.String("dataset", x.Dataset),
		slog.String("location", x.Location),
		slog.Any("tables", x.Tables),
		slog.Any("countries", x.Countries),
		slog.Int("row_limit", x.RowLimit),
		slog.String("driver", x.Driver),
		slog.Any("starrocks", x.StarRocks),
	)
}

func (x *Export) Validate() error {
	if x.Dataset == "" {
		return goerr.New("dataset is not set", goerr.T(TagInvalidConfig))
	}
	if len(x.Tables) == 0 {
		return goerr.New("no table to export", goerr.T(TagInvalidConfig))
	}
	if x.RowLimit <= 0 {
		return goerr.New("row limit must be positive", goerr.V("row_limit", x.RowLimit), goerr.T(TagInvalidConfig))
	}
	if len(x.Countries) > 0 && x.FilterColumn == "" {
		return goerr.New("filter column is required with countries", goerr.T(TagInvalidConfig))
	}

	x.Driver = strings.ToUpper(x.Driver)
	switch x.Driver {
	case DriverGCS:
	case DriverStarRocks:
		if err := x.StarRocks.Validate(); err != nil {
			return goerr.Wrap(err, "invalid StarRocks config", goerr.T(TagInvalidConfig))
		}
	default:
		return goerr.New("unknown export driver", goerr.V("driver", x.Driver), goerr.T(TagInvalidConfig))
	}
	return nil
}

// Job builds the export job from the configured tables and countries.
func (x *Export) Job() (service.ExportJob, error) {
	entries := joinCountryEntries(x.Countries)
	countries := make([]service.Country, 0, len(entries))
	for _, s := range entries {
		c, err := service.ParseCountry(s)
		if err != nil {
			return service.ExportJob{}, err
		}
		countries = append(countries, c)
	}
	return service.NewExportJob(x.Tables, countries)
}

// joinCountryEntries undoes the comma split of the slice flag inside country names: an
// entry without ':' continues the previous one, so "KR:Korea, Republic of" stays one country.
func joinCountryEntries(values []string) []string {
	var out []string
	for _, v := range values {
		if len(out) > 0 && !strings.Contains(v, ":") {
			out[len(out)-1] += ", " + strings.TrimSpace(v)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (x *Export) QueryParams() service.QueryParams {
	return service.QueryParams{
		FilterColumn: x.FilterColumn,
		OrderColumn:  x.OrderColumn,
		RowLimit:     x.RowLimit,
	}
}

func (x *Export) Source() service.SourceDataset {
	return service.SourceDataset{
		Project:  x.SourceProject,
		Dataset:  x.Dataset,
		Location: x.Location,
	}
}

// Bucket returns the destination bucket name. ResolveProjectID must have run before.
func (x *Export) Bucket() string {
	return service.BucketName(x.ProjectID)
}

func (x *Export) ClientOptions() []option.ClientOption {
	if x.Credentials == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(filepath.Clean(x.Credentials))}
}

// ResolveProjectID fills ProjectID from the credential file or the application default
// credentials when it is not configured.
func (x *Export) ResolveProjectID(ctx context.Context) error {
	if x.ProjectID != "" {
		return nil
	}

	slog.InfoContext(ctx, "GCP_PROJECT_ID not set, attempting to detect from credentials...")
	scopes := []string{bigquery.Scope, storage.ScopeReadWrite}

	var creds *google.Credentials
	if x.Credentials != "" {
		data, err := os.ReadFile(filepath.Clean(x.Credentials))
		if err != nil {
			return goerr.Wrap(err, "failed to read credentials", goerr.V("path", x.Credentials), goerr.T(TagInvalidConfig))
		}
		creds, err = google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return goerr.Wrap(err, "failed to parse credentials", goerr.V("path", x.Credentials), goerr.T(TagInvalidConfig))
		}
	} else {
		var err error
		creds, err = google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return goerr.Wrap(err, "failed to find default credentials", goerr.T(TagInvalidConfig))
		}
	}

	if creds.ProjectID == "" {
		return goerr.New("project ID is not set and could not be detected from credentials", goerr.T(TagInvalidConfig))
	}
	x.ProjectID = creds.ProjectID
	slog.InfoContext(ctx, "Detected Project ID", "project_id", x.ProjectID)
	return nil
}
