package vecstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Filter is a boolean predicate over entry metadata: either a leaf predicate
// (equality, set membership, numeric comparison) or a conjunction. The tree
// is validated at construction, so stores receive only well-formed
// expressions.
type Filter interface {
	// Matches evaluates the predicate against one entry's metadata.
	Matches(meta map[string]any) bool

	// String renders the expression for logs and error messages.
	String() string
}

// Eq matches entries whose field equals value exactly. Numeric values
// compare by magnitude regardless of int/float representation.
func Eq(field string, value any) Filter { return eqFilter{field: field, value: value} }

// In matches entries whose field equals any of the given values.
func In(field string, values ...any) Filter { return inFilter{field: field, values: values} }

// Gt matches entries whose field is a number strictly greater than n.
func Gt(field string, n float64) Filter { return gtFilter{field: field, n: n} }

// Lt matches entries whose field is a number strictly less than n.
func Lt(field string, n float64) Filter { return ltFilter{field: field, n: n} }

// And matches entries satisfying every child filter. And() with no children
// matches everything.
func And(filters ...Filter) Filter { return andFilter{children: filters} }

type eqFilter struct {
	field string
	value any
}

func (f eqFilter) Matches(meta map[string]any) bool {
	v, ok := meta[f.field]
	return ok && scalarEq(v, f.value)
}

func (f eqFilter) String() string { return fmt.Sprintf("%s == %v", f.field, f.value) }

type inFilter struct {
	field  string
	values []any
}

func (f inFilter) Matches(meta map[string]any) bool {
	v, ok := meta[f.field]
	if !ok {
		return false
	}
	for _, want := range f.values {
		if scalarEq(v, want) {
			return true
		}
	}
	return false
}

func (f inFilter) String() string { return fmt.Sprintf("%s in %v", f.field, f.values) }

type gtFilter struct {
	field string
	n     float64
}

func (f gtFilter) Matches(meta map[string]any) bool {
	v, ok := asNumber(meta[f.field])
	return ok && v > f.n
}

func (f gtFilter) String() string { return fmt.Sprintf("%s > %v", f.field, f.n) }

type ltFilter struct {
	field string
	n     float64
}

func (f ltFilter) Matches(meta map[string]any) bool {
	v, ok := asNumber(meta[f.field])
	return ok && v < f.n
}

func (f ltFilter) String() string { return fmt.Sprintf("%s < %v", f.field, f.n) }

type andFilter struct {
	children []Filter
}

func (f andFilter) Matches(meta map[string]any) bool {
	for _, c := range f.children {
		if !c.Matches(meta) {
			return false
		}
	}
	return true
}

func (f andFilter) String() string {
	s := "and("
	for i, c := range f.children {
		if i > 0 {
			s += ", "
		}
		s += c.String()
	}
	return s + ")"
}

// scalarEq compares two scalar values, normalising numeric types so that an
// int stored via one codepath equals a float64 decoded from JSON.
func scalarEq(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	return a == b
}

// asNumber converts any supported numeric representation to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ParseFilter decodes the JSON surface syntax into a Filter. The dialect is
// a boolean tree with leaf predicates keyed by field name:
//
//	{"tier": "T0"}                              equality shorthand
//	{"tier": {"eq": "T0"}}                      equality
//	{"tier": {"in": ["T0", "T1"]}}              set membership
//	{"admission_data_count": {"gt": 0}}         numeric comparison
//	{"and": [{"region": "UK"}, {"tier": "T0"}]} conjunction
//
// Multiple keys in one object form an implicit conjunction. Malformed input
// fails with *FilterSyntaxError.
func ParseFilter(data []byte) (Filter, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FilterSyntaxError{Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}
	return parseObject(raw)
}

// parseObject turns one JSON object into a filter, conjoining multiple keys.
func parseObject(raw map[string]json.RawMessage) (Filter, error) {
	if len(raw) == 0 {
		return nil, &FilterSyntaxError{Reason: "empty filter object"}
	}

	// Deterministic traversal keeps error messages and And ordering stable.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, key := range keys {
		f, err := parseClause(key, raw[key])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	if len(filters) == 1 {
		return filters[0], nil
	}
	return And(filters...), nil
}

// parseClause parses one key of a filter object: either the "and" combinator
// or a field predicate.
func parseClause(key string, val json.RawMessage) (Filter, error) {
	if key == "and" {
		var children []map[string]json.RawMessage
		if err := json.Unmarshal(val, &children); err != nil {
			return nil, &FilterSyntaxError{Reason: "\"and\" expects an array of filter objects"}
		}
		if len(children) == 0 {
			return nil, &FilterSyntaxError{Reason: "\"and\" must not be empty"}
		}
		parsed := make([]Filter, 0, len(children))
		for _, c := range children {
			f, err := parseObject(c)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, f)
		}
		return And(parsed...), nil
	}

	// Field predicate: bare scalar is equality shorthand.
	var op map[string]json.RawMessage
	if err := json.Unmarshal(val, &op); err != nil {
		v, err := parseScalar(key, val)
		if err != nil {
			return nil, err
		}
		return Eq(key, v), nil
	}
	if len(op) != 1 {
		return nil, &FilterSyntaxError{
			Reason: fmt.Sprintf("field %q expects exactly one operator, got %d", key, len(op)),
		}
	}

	for name, arg := range op {
		switch name {
		case "eq":
			v, err := parseScalar(key, arg)
			if err != nil {
				return nil, err
			}
			return Eq(key, v), nil
		case "in":
			var items []json.RawMessage
			if err := json.Unmarshal(arg, &items); err != nil {
				return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: \"in\" expects an array", key)}
			}
			if len(items) == 0 {
				return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: \"in\" must not be empty", key)}
			}
			values := make([]any, 0, len(items))
			for _, it := range items {
				v, err := parseScalar(key, it)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			return In(key, values...), nil
		case "gt", "lt":
			var n float64
			if err := json.Unmarshal(arg, &n); err != nil {
				return nil, &FilterSyntaxError{
					Reason: fmt.Sprintf("field %q: %q expects a number", key, name),
				}
			}
			if name == "gt" {
				return Gt(key, n), nil
			}
			return Lt(key, n), nil
		default:
			return nil, &FilterSyntaxError{
				Reason: fmt.Sprintf("field %q: unknown operator %q (want eq, in, gt, lt)", key, name),
			}
		}
	}
	return nil, &FilterSyntaxError{Reason: "unreachable"} // len(op) == 1 guaranteed above
}

// parseScalar decodes one JSON scalar (string, number, bool).
func parseScalar(field string, raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: invalid value", field)}
	}
	switch v.(type) {
	case string, bool, float64:
		return v, nil
	}
	return nil, &FilterSyntaxError{
		Reason: fmt.Sprintf("field %q: value must be a string, number, or bool", field),
	}
}
