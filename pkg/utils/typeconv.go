package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConvertToFloat coerces a decoded JSON scalar to float64.
// Strings are parsed; anything else is an error.
func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("not a finite number: %s", v)
		}
		return f, nil
	case []byte:
		return ConvertToFloat(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// FormatScalar renders a cell for CSV output. Nil becomes the empty string and
// floats use the shortest representation that round-trips.
func FormatScalar(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// InferType guesses a column type from a CSV cell. Empty cells return "".
func InferType(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ""
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return "INTEGER"
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return "FLOAT"
	}
	return "STRING"
}

// WidenType merges two inferred types: INTEGER < FLOAT < STRING.
func WidenType(a, b string) string {
	rank := map[string]int{"": 0, "INTEGER": 1, "FLOAT": 2, "STRING": 3}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
