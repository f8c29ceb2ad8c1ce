package etl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestUploadLogs_PutsPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etl.log")
	require.NoError(t, os.WriteFile(path, []byte("INFO: run finished\n"), 0o644))
	store := newMemStore()

	require.NoError(t, UploadLogs(context.Background(), store, path))
	require.Equal(t, "INFO: run finished\n", string(store.objects[models.LogsPath]))
	require.Equal(t, "text/plain", store.types[models.LogsPath])

	// a later upload replaces the earlier one
	require.NoError(t, os.WriteFile(path, []byte("INFO: second run\n"), 0o644))
	require.NoError(t, UploadLogs(context.Background(), store, path))
	require.Equal(t, "INFO: second run\n", string(store.objects[models.LogsPath]))
	require.Equal(t, 2, store.puts)
}

func TestUploadLogs_Errors(t *testing.T) {
	store := newMemStore()
	require.ErrorIs(t, UploadLogs(context.Background(), store, ""), ErrConfiguration)
	require.ErrorIs(t, UploadLogs(context.Background(), store, filepath.Join(t.TempDir(), "missing.log")), ErrStorage)

	path := filepath.Join(t.TempDir(), "etl.log")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	store.putErr = errors.New("bucket gone")
	require.ErrorIs(t, UploadLogs(context.Background(), store, path), ErrStorage)
	require.Zero(t, store.puts)
}
