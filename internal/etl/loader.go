package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// SchemaMode picks how the destination schema is resolved for one run.
type SchemaMode string

const (
	SchemaExplicit   SchemaMode = "explicit"
	SchemaHeader     SchemaMode = "header"
	SchemaAutodetect SchemaMode = "autodetect"
)

// Disposition picks what happens to rows already in the table.
type Disposition string

const (
	DispositionTruncate Disposition = "truncate"
	DispositionAppend   Disposition = "append"
)

// ParseSchemaMode accepts "", which means explicit.
func ParseSchemaMode(s string) (SchemaMode, error) {
	switch m := SchemaMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SchemaExplicit, nil
	case SchemaExplicit, SchemaHeader, SchemaAutodetect:
		return m, nil
	default:
		return "", fmt.Errorf("unknown schema mode %q (want explicit, header or autodetect)", s)
	}
}

// ParseDisposition accepts "", which means truncate.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DispositionTruncate, nil
	case DispositionTruncate, DispositionAppend:
		return d, nil
	default:
		return "", fmt.Errorf("unknown write disposition %q (want truncate or append)", s)
	}
}

// LoadOptions configures one bulk load.
type LoadOptions struct {
	Mode        SchemaMode
	Disposition Disposition
	// Schema is required for SchemaExplicit and filled in by the Loader for
	// SchemaHeader. It stays nil for SchemaAutodetect.
	Schema models.Schema
}

// LoadResult is what the warehouse reports after the load finished.
type LoadResult struct {
	Table   models.TableID
	Created bool
	Rows    int64
	Columns int
}

var defaultSchemas = map[models.Entity]models.Schema{
	models.Users: {
		{Name: "user_id", Type: models.TypeInteger, Mode: models.ModeRequired},
		{Name: "first_name", Type: models.TypeString, Mode: models.ModeRequired},
		{Name: "last_name", Type: models.TypeString, Mode: models.ModeRequired},
		{Name: "gender", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "age", Type: models.TypeInteger, Mode: models.ModeNullable},
		{Name: "street", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "city", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "postal_code", Type: models.TypeString, Mode: models.ModeNullable},
	},
	models.Products: {
		{Name: "product_id", Type: models.TypeInteger, Mode: models.ModeRequired},
		{Name: "name", Type: models.TypeString, Mode: models.ModeRequired},
		{Name: "category", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "brand", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "price", Type: models.TypeFloat, Mode: models.ModeRequired},
	},
	models.Carts: {
		{Name: "cart_id", Type: models.TypeInteger, Mode: models.ModeRequired},
		{Name: "user_id", Type: models.TypeInteger, Mode: models.ModeRequired},
		{Name: "product_id", Type: models.TypeInteger, Mode: models.ModeRequired},
		{Name: "name", Type: models.TypeString, Mode: models.ModeNullable},
		{Name: "quantity", Type: models.TypeInteger, Mode: models.ModeNullable},
		{Name: "price", Type: models.TypeFloat, Mode: models.ModeNullable},
		{Name: "total_cart_value", Type: models.TypeFloat, Mode: models.ModeNullable},
	},
}

// DefaultSchema returns a copy of the built-in explicit schema for e.
func DefaultSchema(e models.Entity) models.Schema {
	return append(models.Schema(nil), defaultSchemas[e]...)
}

// Loader bulk-loads CSV artifacts into a warehouse table.
type Loader struct {
	Warehouse Warehouse
}

func NewLoader(w Warehouse) *Loader {
	return &Loader{Warehouse: w}
}

// Load creates tableID if needed, loads csvPath into it and reports the
// resulting row and column counts.
func (l *Loader) Load(ctx context.Context, csvPath, tableID string, opts LoadOptions) (*LoadResult, error) {
	op := "load " + tableID
	defer logger.Infof("Load attempt of %s into %s completed.", csvPath, tableID)

	id, err := models.ParseTableID(tableID)
	if err != nil {
		logger.Errorf("Invalid table id: %v", err)
		return nil, newError(KindConfiguration, op, err)
	}

	if _, err := os.Stat(csvPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Errorf("File not found: %s", csvPath)
		} else {
			logger.Errorf("Cannot read %s: %v", csvPath, err)
		}
		return nil, newError(KindConfiguration, op, err)
	}

	if opts.Disposition == "" {
		opts.Disposition = DispositionTruncate
	}
	switch opts.Mode {
	case SchemaExplicit, "":
		opts.Mode = SchemaExplicit
		if len(opts.Schema) == 0 {
			logger.Errorf("Explicit schema mode requires a schema for %s", tableID)
			return nil, errorf(KindConfiguration, op, "explicit schema mode without a schema")
		}
	case SchemaHeader:
		schema, err := HeaderSchema(csvPath)
		if err != nil {
			logger.Errorf("Error inferring schema from CSV: %v", err)
			return nil, newError(KindConfiguration, op, err)
		}
		logger.Infof("Inferred schema: %v", schema.Names())
		opts.Schema = schema
	case SchemaAutodetect:
		opts.Schema = nil
	default:
		return nil, errorf(KindConfiguration, op, "unknown schema mode %q", opts.Mode)
	}

	logger.Infof("Checking if table %s exists...", id)
	created, err := l.Warehouse.EnsureTable(ctx, id, opts.Schema)
	if err != nil {
		logger.Errorf("Warehouse error while preparing %s: %v", id, err)
		return nil, newError(KindWarehouse, op, err)
	}
	if created {
		logger.Infof("Table %s created successfully.", id)
	} else {
		logger.Infof("Table %s already exists or is created on load.", id)
	}

	logger.Infof("Starting the load job for table: %s (%s, %s)", id, opts.Mode, opts.Disposition)
	if err := l.Warehouse.LoadCSV(ctx, id, csvPath, opts); err != nil {
		logger.Errorf("Warehouse error while loading %s: %v", id, err)
		return nil, newError(KindWarehouse, op, err)
	}
	logger.Infof("Data loaded successfully!")

	rows, cols, err := l.Warehouse.Stats(ctx, id)
	if err != nil {
		logger.Errorf("Warehouse error while reading back %s: %v", id, err)
		return nil, newError(KindWarehouse, op, err)
	}
	logger.Infof("Loaded %d rows and %d columns to %s", rows, cols, id)

	return &LoadResult{Table: id, Created: created, Rows: rows, Columns: cols}, nil
}
