package etl

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BartekS5/storefront-etl/pkg/models"
	"github.com/BartekS5/storefront-etl/pkg/utils"
)

// autodetectSampleRows is how many data rows schema autodetection inspects.
const autodetectSampleRows = 100

// EncodeCSV renders a table as comma-delimited CSV with one header row.
func EncodeCSV(t *models.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}

	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
		for j, cell := range row {
			record[j] = utils.FormatScalar(cell)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// readCSVHead returns the header and up to limit data rows of a CSV file.
func readCSVHead(path string, limit int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("%s: empty csv file", path)
		}
		return nil, nil, err
	}

	var rows [][]string
	for limit < 0 || len(rows) < limit {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// HeaderSchema types every CSV header column as STRING.
func HeaderSchema(path string) (models.Schema, error) {
	header, _, err := readCSVHead(path, 0)
	if err != nil {
		return nil, err
	}
	return models.StringSchema(header), nil
}

// DetectSchema samples the first data rows and picks INTEGER, FLOAT or
// STRING per column. Columns with no sampled value become STRING.
func DetectSchema(path string) (models.Schema, error) {
	header, rows, err := readCSVHead(path, autodetectSampleRows)
	if err != nil {
		return nil, err
	}
	types := make([]string, len(header))
	for _, row := range rows {
		for i := range header {
			if i < len(row) {
				types[i] = utils.WidenType(types[i], utils.InferType(row[i]))
			}
		}
	}
	schema := make(models.Schema, len(header))
	for i, name := range header {
		typ := types[i]
		if typ == "" {
			typ = models.TypeString
		}
		schema[i] = models.Field{Name: name, Type: typ, Mode: models.ModeNullable}
	}
	return schema, nil
}
