package etl

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure so the orchestrator can decide whether
// another attempt is worthwhile.
type ErrorKind string

const (
	KindNetwork       ErrorKind = "NetworkError"
	KindHTTPStatus    ErrorKind = "HTTPStatusError"
	KindDecode        ErrorKind = "DecodeError"
	KindSchema        ErrorKind = "SchemaError"
	KindStorage       ErrorKind = "StorageError"
	KindWarehouse     ErrorKind = "WarehouseError"
	KindConfiguration ErrorKind = "ConfigurationError"
)

var (
	ErrNetwork       = errors.New("network error")
	ErrHTTPStatus    = errors.New("http status error")
	ErrDecode        = errors.New("decode error")
	ErrSchema        = errors.New("schema error")
	ErrStorage       = errors.New("storage error")
	ErrWarehouse     = errors.New("warehouse error")
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound is returned by artifact stores for a missing object.
	ErrNotFound = errors.New("artifact not found")
)

var sentinels = map[ErrorKind]error{
	KindNetwork:       ErrNetwork,
	KindHTTPStatus:    ErrHTTPStatus,
	KindDecode:        ErrDecode,
	KindSchema:        ErrSchema,
	KindStorage:       ErrStorage,
	KindWarehouse:     ErrWarehouse,
	KindConfiguration: ErrConfiguration,
}

// Error is the typed failure returned across every stage boundary.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	out := []error{sentinels[e.Kind]}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a stage error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a second attempt could succeed. Configuration,
// schema and decode failures are deterministic for the same input.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindSchema, KindDecode:
		return false
	default:
		return true
	}
}
