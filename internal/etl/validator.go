package etl

import (
	"fmt"
	"strings"
)

// Column maps an output column to the flattened source keys it may come
// from. The first key present in a record wins.
type Column struct {
	Name     string
	Sources  []string
	Required bool
}

// Validator checks that the columns a transform depends on exist in a batch.
type Validator struct {
	Columns []Column
}

func NewValidator(columns []Column) *Validator {
	return &Validator{Columns: columns}
}

// ValidateBatch fails when a required column is absent from every record.
// Records that lack a value for a column present elsewhere in the batch are
// accepted and produce an empty cell.
func (v *Validator) ValidateBatch(records []map[string]interface{}) error {
	var missing []string
	for _, col := range v.Columns {
		if !col.Required {
			continue
		}
		if !anyHas(records, col.Sources) {
			missing = append(missing, strings.Join(col.Sources, "|"))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func anyHas(records []map[string]interface{}, keys []string) bool {
	for _, r := range records {
		for _, k := range keys {
			if _, ok := r[k]; ok {
				return true
			}
		}
	}
	return false
}

// pick returns the first present source value of col in record, or nil.
func pick(record map[string]interface{}, col Column) interface{} {
	for _, k := range col.Sources {
		if v, ok := record[k]; ok {
			return v
		}
	}
	return nil
}
