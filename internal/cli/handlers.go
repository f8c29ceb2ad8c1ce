package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/BartekS5/storefront-etl/internal/config"
	"github.com/BartekS5/storefront-etl/internal/etl"
	"github.com/BartekS5/storefront-etl/pkg/database"
	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// app holds what every command builds from the environment and the pipeline
// file. Close releases every client it opened.
type app struct {
	cfg     *config.Config
	file    *models.PipelineFile
	closers []func() error
}

func newApp(opts *RootOptions) (*app, error) {
	cfg := opts.cfg
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return nil, err
		}
	}
	file, err := config.LoadPipeline(opts.PipelineFile)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, file: file}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("Error while closing: %v", err)
		}
	}
	a.closers = nil
}

func (a *app) store(ctx context.Context) (etl.ArtifactStore, error) {
	if err := a.cfg.ValidateStore(); err != nil {
		return nil, err
	}
	switch a.cfg.ArtifactStore {
	case config.StoreGCS:
		s, err := etl.NewGCSStore(ctx, a.cfg.GCSBucket, a.cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		logger.Infof("Using artifact store gs://%s", a.cfg.GCSBucket)
		return s, nil
	case config.StoreGridFS:
		client, err := database.ConnectMongo(a.cfg.MongoConnString)
		if err != nil {
			return nil, err
		}
		s, err := etl.NewGridFSStore(client, a.cfg.MongoDatabase, "artifacts")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		logger.Infof("Using GridFS artifact store in database %s", a.cfg.MongoDatabase)
		return s, nil
	default:
		logger.Infof("Using local artifact store in %s", a.cfg.LocalStoreDir)
		return etl.NewLocalStore(a.cfg.LocalStoreDir), nil
	}
}

func (a *app) warehouse(ctx context.Context) (etl.Warehouse, error) {
	if err := a.cfg.ValidateWarehouse(); err != nil {
		return nil, err
	}
	var w etl.Warehouse
	if a.cfg.WarehouseDriver == config.WarehouseBigQuery {
		bq, err := etl.NewBigQueryWarehouse(ctx, a.cfg.GCPProject, a.cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		w = bq
	} else {
		db, err := database.ConnectSQL(a.cfg.WarehouseDriver, a.cfg.WarehouseDSN)
		if err != nil {
			return nil, err
		}
		sw, err := etl.NewSQLWarehouse(db, a.cfg.WarehouseDriver)
		if err != nil {
			db.Close()
			return nil, err
		}
		w = sw
	}
	a.closers = append(a.closers, w.Close)
	return w, nil
}

func (a *app) fetcher(ctx context.Context) (*etl.Fetcher, error) {
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return etl.NewFetcher(config.Endpoints(a.file), s, a.cfg.HTTPTimeout), nil
}

func (a *app) csvPath(e models.Entity) string {
	return filepath.Join(a.cfg.CSVDir, e.String()+".csv")
}

// pipeline builds all three stages for one orchestrated run.
func (a *app) pipeline(ctx context.Context, opts *runOptions) (*etl.Pipeline, error) {
	if opts.UploadLogs && a.cfg.LogFile == "" {
		return nil, fmt.Errorf("--upload-logs needs --log-file or LOG_FILE")
	}
	entities, err := models.ParseEntities(opts.Entities)
	if err != nil {
		return nil, err
	}
	tables, err := config.ResolveTables(a.cfg, a.file, entities, config.Overrides{
		SchemaMode:  opts.SchemaMode,
		Disposition: opts.Disposition,
	})
	if err != nil {
		return nil, err
	}

	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	w, err := a.warehouse(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Retries < 0 {
		return nil, fmt.Errorf("--retries must not be negative")
	}
	return etl.NewPipeline(
		etl.NewFetcher(config.Endpoints(a.file), s, a.cfg.HTTPTimeout),
		etl.NewTransformer(s),
		etl.NewLoader(w),
		etl.PipelineOptions{
			Entities:      entities,
			ParallelFetch: opts.ParallelFetch,
			Retries:       opts.Retries,
			CSVDir:        a.cfg.CSVDir,
			Tables:        tables,
		},
	), nil
}
