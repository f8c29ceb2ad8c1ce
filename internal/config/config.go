// Package config handles loading of the environment configuration and of the
// optional pipeline JSON file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/storefront-etl/internal/etl"
)

const (
	StoreLocal  = "local"
	StoreGCS    = "gcs"
	StoreGridFS = "gridfs"

	WarehouseBigQuery = "bigquery"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	ArtifactStore   string
	GCSBucket       string
	MongoConnString string
	MongoDatabase   string
	LocalStoreDir   string

	WarehouseDriver string
	WarehouseDSN    string
	GCPProject      string
	BQDataset       string
	CredentialsFile string

	CSVDir      string
	HTTPTimeout time.Duration
	LogFile     string
	LogLevel    string
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	timeout, err := durationEnv("HTTP_TIMEOUT", etl.DefaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ArtifactStore:   strings.ToLower(getEnv("ARTIFACT_STORE", StoreLocal)),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		MongoConnString: getEnv("MONGO_CONNECTION_STRING", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "storefront"),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "data"),
		WarehouseDriver: strings.ToLower(getEnv("WAREHOUSE_DRIVER", WarehouseBigQuery)),
		WarehouseDSN:    getEnv("WAREHOUSE_DSN", ""),
		GCPProject:      getEnv("GCP_PROJECT", ""),
		BQDataset:       getEnv("BQ_DATASET", "storefront"),
		CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		CSVDir:          getEnv("CSV_DIR", "."),
		HTTPTimeout:     timeout,
		LogFile:         getEnv("LOG_FILE", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	if cfg.GCPProject == "" && cfg.WarehouseDriver != WarehouseBigQuery {
		// SQL warehouses ignore the project part of a table id
		cfg.GCPProject = "local"
	}
	return cfg, nil
}

// ValidateStore checks the variables the selected artifact store needs.
func (c *Config) ValidateStore() error {
	switch c.ArtifactStore {
	case StoreLocal:
		return nil
	case StoreGCS:
		return required("GCS_BUCKET", c.GCSBucket)
	case StoreGridFS:
		return required("MONGO_CONNECTION_STRING", c.MongoConnString)
	default:
		return fmt.Errorf("ARTIFACT_STORE must be one of %s, %s, %s; got %q", StoreLocal, StoreGCS, StoreGridFS, c.ArtifactStore)
	}
}

// ValidateWarehouse checks the variables the selected warehouse needs.
func (c *Config) ValidateWarehouse() error {
	switch c.WarehouseDriver {
	case WarehouseBigQuery:
		if err := required("GCP_PROJECT", c.GCPProject); err != nil {
			return err
		}
	case "sqlserver", "postgres", "mysql", "sqlite":
		if err := required("WAREHOUSE_DSN", c.WarehouseDSN); err != nil {
			return err
		}
	default:
		return fmt.Errorf("WAREHOUSE_DRIVER must be bigquery, sqlserver, postgres, mysql or sqlite; got %q", c.WarehouseDriver)
	}
	return required("BQ_DATASET", c.BQDataset)
}

// DefaultTableID is project.dataset.{entity}_table.
func (c *Config) DefaultTableID(entity string) string {
	return fmt.Sprintf("%s.%s.%s_table", c.GCPProject, c.BQDataset, entity)
}
