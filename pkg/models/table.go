package models

import (
	"fmt"
	"strings"
)

// Column types understood by every warehouse backend.
const (
	TypeString  = "STRING"
	TypeInteger = "INTEGER"
	TypeFloat   = "FLOAT"
)

const (
	ModeRequired = "REQUIRED"
	ModeNullable = "NULLABLE"
)

// Field describes a single column in a destination table.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
}

// Schema is an ordered column list.
type Schema []Field

// Names returns the ordered column names.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// StringSchema types every column as STRING.
func StringSchema(columns []string) Schema {
	s := make(Schema, len(columns))
	for i, c := range columns {
		s[i] = Field{Name: c, Type: TypeString, Mode: ModeNullable}
	}
	return s
}

// Table is the flat, row-oriented output of a transform.
// Every row has exactly len(Columns) cells; a nil cell is an empty value.
type Table struct {
	Entity  Entity
	Columns []string
	Rows    [][]interface{}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the values of the named column.
func (t *Table) Column(name string) []interface{} {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out
}

// TableID identifies a warehouse table as project.dataset.table.
type TableID struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableID parses a dotted three-part identifier.
func ParseTableID(s string) (TableID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return TableID{}, fmt.Errorf("table id %q must have the form project.dataset.table", s)
	}
	for _, p := range parts {
		if p == "" {
			return TableID{}, fmt.Errorf("table id %q has an empty part", s)
		}
	}
	return TableID{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
}

func (id TableID) String() string {
	return id.Project + "." + id.Dataset + "." + id.Table
}
