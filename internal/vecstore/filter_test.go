package vecstore

import (
	"errors"
	"testing"
)

// meta returns the metadata of a T1 UK program used across filter tests.
func meta() map[string]any {
	return map[string]any{
		"region":               "UK",
		"tier":                 "T1",
		"thesis_required":      false,
		"admission_data_count": 3,
	}
}

func Test_Filter_Eq(t *testing.T) {
	t.Parallel()

	if !Eq("region", "UK").Matches(meta()) {
		t.Error("eq on matching string should match")
	}
	if Eq("region", "USA").Matches(meta()) {
		t.Error("eq on different string should not match")
	}
	if !Eq("thesis_required", false).Matches(meta()) {
		t.Error("eq on bool should match")
	}
	if Eq("missing", "x").Matches(meta()) {
		t.Error("eq on absent field should not match")
	}
	// JSON decodes numbers as float64; stored metadata may hold int.
	if !Eq("admission_data_count", float64(3)).Matches(meta()) {
		t.Error("numeric eq should ignore int/float representation")
	}
}

func Test_Filter_In(t *testing.T) {
	t.Parallel()

	if !In("tier", "T0", "T1").Matches(meta()) {
		t.Error("in should match member")
	}
	if In("tier", "T0").Matches(meta()) {
		t.Error("in should not match non-member")
	}
}

func Test_Filter_GtLt(t *testing.T) {
	t.Parallel()

	if !Gt("admission_data_count", 0).Matches(meta()) {
		t.Error("gt 0 should match count 3")
	}
	if Gt("admission_data_count", 3).Matches(meta()) {
		t.Error("gt is strict")
	}
	if !Lt("admission_data_count", 10).Matches(meta()) {
		t.Error("lt 10 should match count 3")
	}
	if Gt("region", 0).Matches(meta()) {
		t.Error("gt over non-numeric field should not match")
	}
}

func Test_Filter_And(t *testing.T) {
	t.Parallel()

	f := And(Eq("region", "UK"), In("tier", "T0", "T1"), Gt("admission_data_count", 0))
	if !f.Matches(meta()) {
		t.Error("conjunction of satisfied predicates should match")
	}

	f = And(Eq("region", "UK"), Eq("tier", "T0"))
	if f.Matches(meta()) {
		t.Error("conjunction with one failing predicate should not match")
	}

	if !And().Matches(meta()) {
		t.Error("empty conjunction matches everything")
	}
}

func Test_ParseFilter_Dialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		json  string
		match bool
	}{
		{"bare scalar is eq", `{"region":"UK"}`, true},
		{"explicit eq", `{"tier":{"eq":"T1"}}`, true},
		{"in", `{"tier":{"in":["T0","T1"]}}`, true},
		{"gt", `{"admission_data_count":{"gt":0}}`, true},
		{"lt misses", `{"admission_data_count":{"lt":2}}`, false},
		{"and array", `{"and":[{"region":"UK"},{"tier":"T1"}]}`, true},
		{"multi-key implicit and", `{"region":"UK","tier":"T0"}`, false},
		{"bool eq", `{"thesis_required":false}`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := ParseFilter([]byte(tc.json))
			if err != nil {
				t.Fatalf("parse %s: %v", tc.json, err)
			}
			if got := f.Matches(meta()); got != tc.match {
				t.Errorf("%s: want match=%v, got %v", tc.json, tc.match, got)
			}
		})
	}
}

func Test_ParseFilter_SyntaxErrors(t *testing.T) {
	t.Parallel()

	bad := []string{
		`not json`,
		`{}`,
		`{"tier":{"like":"T%"}}`,
		`{"tier":{"in":"T0"}}`,
		`{"tier":{"in":[]}}`,
		`{"count":{"gt":"three"}}`,
		`{"and":[]}`,
		`{"and":{"region":"UK"}}`,
		`{"tier":{"eq":"T0","in":["T1"]}}`,
		`{"pros":["a","b"]}`,
	}

	for _, expr := range bad {
		_, err := ParseFilter([]byte(expr))
		var serr *FilterSyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("%s: want *FilterSyntaxError, got %v", expr, err)
		}
	}
}
