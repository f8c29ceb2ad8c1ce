package models

import "encoding/json"

// PipelineFile represents the root of the optional pipeline JSON file.
// Every field is optional; zero values fall back to built-in defaults.
type PipelineFile struct {
	Endpoints map[string]string        `json:"endpoints,omitempty"`
	Tables    map[string]TableSettings `json:"tables,omitempty"`
}

// TableSettings overrides how one entity is loaded into the warehouse.
type TableSettings struct {
	TableID     string  `json:"tableId,omitempty"`
	SchemaMode  string  `json:"schemaMode,omitempty"`
	Disposition string  `json:"disposition,omitempty"`
	Schema      []Field `json:"schema,omitempty"`
}

func LoadPipelineFile(data []byte) (*PipelineFile, error) {
	var p PipelineFile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
