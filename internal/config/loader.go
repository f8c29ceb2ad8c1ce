package config

import (
	"fmt"
	"os"

	"github.com/BartekS5/storefront-etl/pkg/models"
)

// LoadPipeline reads and parses the pipeline file at filePath. An empty path
// yields an empty file, so every setting falls back to its default.
func LoadPipeline(filePath string) (*models.PipelineFile, error) {
	if filePath == "" {
		return &models.PipelineFile{}, nil
	}

	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file '%s': %w", filePath, err)
	}

	file, err := models.LoadPipelineFile(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file '%s': %w", filePath, err)
	}
	for key := range file.Tables {
		if !models.Entity(key).Valid() {
			return nil, fmt.Errorf("pipeline file '%s': unknown entity %q in tables", filePath, key)
		}
	}
	return file, nil
}
