package etl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/BartekS5/storefront-etl/pkg/models"
)

// BigQueryWarehouse loads CSV files with BigQuery load jobs.
type BigQueryWarehouse struct {
	Client *bigquery.Client
}

// NewBigQueryWarehouse creates a client for project. An empty credentialsFile
// falls back to Application Default Credentials.
func NewBigQueryWarehouse(ctx context.Context, project, credentialsFile string) (*BigQueryWarehouse, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating BigQuery client: %w", err)
	}
	return &BigQueryWarehouse{Client: client}, nil
}

func (w *BigQueryWarehouse) table(id models.TableID) *bigquery.Table {
	return w.Client.DatasetInProject(id.Project, id.Dataset).Table(id.Table)
}

func (w *BigQueryWarehouse) EnsureTable(ctx context.Context, id models.TableID, schema models.Schema) (bool, error) {
	t := w.table(id)
	if _, err := t.Metadata(ctx); err == nil {
		return false, nil
	} else if !isNotFound(err) {
		return false, err
	}

	meta := &bigquery.TableMetadata{}
	if len(schema) > 0 {
		meta.Schema = toBigQuerySchema(schema)
	}
	if err := t.Create(ctx, meta); err != nil {
		if isAlreadyExists(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (w *BigQueryWarehouse) LoadCSV(ctx context.Context, id models.TableID, csvPath string, opts LoadOptions) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	src := bigquery.NewReaderSource(f)
	src.SourceFormat = bigquery.CSV
	src.FieldDelimiter = ","
	src.SkipLeadingRows = 1
	if opts.Mode == SchemaAutodetect || len(opts.Schema) == 0 {
		src.AutoDetect = true
	} else {
		src.Schema = toBigQuerySchema(opts.Schema)
	}

	loader := w.table(id).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if opts.Disposition == DispositionAppend {
		loader.WriteDisposition = bigquery.WriteAppend
	} else {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

func (w *BigQueryWarehouse) Stats(ctx context.Context, id models.TableID) (int64, int, error) {
	meta, err := w.table(id).Metadata(ctx)
	if err != nil {
		return 0, 0, err
	}
	return int64(meta.NumRows), len(meta.Schema), nil
}

func (w *BigQueryWarehouse) Close() error {
	return w.Client.Close()
}

func toBigQuerySchema(s models.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(s))
	for i, f := range s {
		typ := bigquery.StringFieldType
		switch f.Type {
		case models.TypeInteger:
			typ = bigquery.IntegerFieldType
		case models.TypeFloat:
			typ = bigquery.FloatFieldType
		}
		out[i] = &bigquery.FieldSchema{
			Name:     f.Name,
			Type:     typ,
			Required: f.Mode == models.ModeRequired,
		}
	}
	return out
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
