package etl

import (
	"context"
	"os"

	"github.com/BartekS5/storefront-etl/pkg/logger"
	"github.com/BartekS5/storefront-etl/pkg/models"
)

// UploadLogs copies the local log file into the artifact store, replacing
// the previous upload.
func UploadLogs(ctx context.Context, store ArtifactStore, logFile string) error {
	const op = "upload logs"
	if logFile == "" {
		return errorf(KindConfiguration, op, "no log file configured")
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		return newError(KindStorage, op, err)
	}
	if err := store.Put(ctx, models.LogsPath, "text/plain", data); err != nil {
		return newError(KindStorage, op, err)
	}
	logger.Infof("Uploaded %s (%d bytes) to %s", logFile, len(data), models.LogsPath)
	return nil
}
