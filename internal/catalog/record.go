// Package catalog models one row of the program catalog and turns it into an
// embeddable document plus flat filter metadata. The catalog itself (CSV
// parsing, cleaning) is the caller's concern — this package only consumes
// Records.
package catalog

import "fmt"

// Record is one program entry as supplied by the caller: a stable key plus a
// flat mapping of column name to scalar value. Keys must be unique within a
// batch; re-ingesting the same key overwrites the stored entry.
type Record struct {
	// Key is the stable source identifier (e.g. "mit-cs-phd"). It must be
	// unique and stable across runs — it becomes the stored entry id.
	Key string

	// Fields maps column names to scalar values (string, number, or bool).
	Fields map[string]any
}

// String returns the string value of the named field, or "" when absent or
// not a string.
func (r Record) String(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// Bool returns the boolean value of the named field, or false when absent.
func (r Record) Bool(name string) bool {
	b, _ := r.Fields[name].(bool)
	return b
}

// Int returns the integer value of the named field, accepting int, int64, and
// float64 representations (CSV and JSON loaders disagree on numeric types).
func (r Record) Int(name string) int {
	switch v := r.Fields[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ValidationError reports malformed Record or query input. It is never
// retried — the caller must fix the input.
type ValidationError struct {
	// Field is the offending field name ("key", "query", ...).
	Field string
	// Reason describes what is wrong with the value.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid %s: %s", e.Field, e.Reason)
}

// IsScalar reports whether v is one of the scalar types the store's filter
// language can evaluate (string, number, bool).
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float32, float64:
		return true
	}
	return false
}
