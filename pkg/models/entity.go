package models

import (
	"fmt"
	"strings"
	"time"
)

// Entity names one of the three upstream collections.
type Entity string

const (
	Users    Entity = "users"
	Products Entity = "products"
	Carts    Entity = "carts"
)

// Entities lists every known entity in fetch order.
var Entities = []Entity{Users, Products, Carts}

func (e Entity) String() string { return string(e) }

// Valid reports whether e is one of the known entities.
func (e Entity) Valid() bool {
	for _, known := range Entities {
		if e == known {
			return true
		}
	}
	return false
}

// ParseEntities splits a comma-separated list such as "users,carts".
func ParseEntities(s string) ([]Entity, error) {
	var out []Entity
	seen := make(map[Entity]bool)
	for _, part := range strings.Split(s, ",") {
		e := Entity(strings.TrimSpace(strings.ToLower(part)))
		if e == "" {
			continue
		}
		if !e.Valid() {
			return nil, fmt.Errorf("unknown entity %q", part)
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no entities in %q", s)
	}
	return out, nil
}

// RawPath is the artifact path of the unmodified payload for name.
func RawPath(name string) string {
	return fmt.Sprintf("raw/%s_raw.json", name)
}

// TransformedPath is the artifact path of the CSV produced for e.
func TransformedPath(e Entity) string {
	return fmt.Sprintf("transformed/%s_transformed.csv", e)
}

// LogsPath is where a run's log file is uploaded.
const LogsPath = "logs/execution_logs.txt"

// RawDocument is the payload fetched from one endpoint.
type RawDocument struct {
	Source    string
	Path      string
	FetchedAt time.Time
	Body      interface{}
}
