package etl

import (
	"context"

	"github.com/BartekS5/storefront-etl/pkg/models"
)

// ArtifactStore hands payloads between stages. Put overwrites any object
// already stored at path.
type ArtifactStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Warehouse is the destination of the bulk load.
type Warehouse interface {
	// EnsureTable creates id when it does not exist. A nil schema creates
	// the table without columns where the engine allows it.
	EnsureTable(ctx context.Context, id models.TableID, schema models.Schema) (created bool, err error)
	// LoadCSV streams a CSV file (header row skipped) into id and blocks
	// until the engine reports completion.
	LoadCSV(ctx context.Context, id models.TableID, csvPath string, opts LoadOptions) error
	// Stats reports the current row and column counts of id.
	Stats(ctx context.Context, id models.TableID) (rows int64, columns int, err error)
	Close() error
}
