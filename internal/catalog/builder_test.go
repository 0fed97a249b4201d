package catalog

import (
	"errors"
	"strings"
	"testing"
)

// sampleRecord returns a fully-populated program record for tests.
func sampleRecord() Record {
	return Record{
		Key: "ox-cs-ms",
		Fields: map[string]any{
			"program_name":         "MSc in Computer Science",
			"university":           "University of Oxford",
			"region":               "UK",
			"tier":                 "T1",
			"duration":             "12 months",
			"language":             "EN",
			"degree_type":          "MSc",
			"pros":                 "strong theory faculty",
			"cons":                 "expensive",
			"admission_preference": "research experience valued",
			"application_notes":    "early deadline",
			"scholarship":          "Clarendon available",
			"internship_required":  false,
			"thesis_required":      false,
			"admission_data_count": 3,
		},
	}
}

func Test_Build_DeterministicID(t *testing.T) {
	t.Parallel()
	rec := sampleRecord()

	a, err := Build(rec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Build(rec)
	if err != nil {
		t.Fatalf("build again: %v", err)
	}

	if a.ID != "ox-cs-ms" || a.ID != b.ID {
		t.Errorf("want stable id ox-cs-ms, got %q then %q", a.ID, b.ID)
	}
	if a.Document != b.Document {
		t.Error("document text differs between builds of the same record")
	}
}

func Test_Build_DocumentContainsFreeText(t *testing.T) {
	t.Parallel()
	built, err := Build(sampleRecord())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, want := range []string{
		"MSc in Computer Science",
		"University of Oxford",
		"strong theory faculty",
		"Clarendon available",
	} {
		if !strings.Contains(built.Document, want) {
			t.Errorf("document missing %q:\n%s", want, built.Document)
		}
	}
}

func Test_Build_MetadataIsFlatScalar(t *testing.T) {
	t.Parallel()
	built, err := Build(sampleRecord())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := built.Metadata["tier"]; got != "T1" {
		t.Errorf("tier: want T1, got %v", got)
	}
	if got := built.Metadata["thesis_required"]; got != false {
		t.Errorf("thesis_required: want false, got %v", got)
	}
	if got := built.Metadata["admission_data_count"]; got != 3 {
		t.Errorf("admission_data_count: want 3, got %v", got)
	}
	for k, v := range built.Metadata {
		if !IsScalar(v) {
			t.Errorf("metadata %s holds non-scalar %T", k, v)
		}
	}
}

func Test_Build_EmptyKeyRejected(t *testing.T) {
	t.Parallel()
	_, err := Build(Record{Key: "  ", Fields: map[string]any{"program_name": "x"}})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if verr.Field != "key" {
		t.Errorf("want field key, got %q", verr.Field)
	}
}

func Test_Build_NonScalarFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := Build(Record{
		Key:    "bad",
		Fields: map[string]any{"pros": []string{"nested"}},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
}

func Test_FlattenAdmissionCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string // substring; "" means empty output expected
	}{
		{"empty", "", ""},
		{"null literal", "null", ""},
		{
			"well formed",
			`[{"year":"2024","outcome":"PhD offer","school_tier":"top-10","major":"CS","gpa":"3.9"}]`,
			"Admitted 2024: PhD offer",
		},
		{
			"missing attributes filled",
			`[{"year":"2023","outcome":"MS offer"}]`,
			"GPA/rank n/a",
		},
		{
			"malformed json kept verbatim",
			"two offers in 2022, both T0 applicants",
			"two offers in 2022, both T0 applicants",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FlattenAdmissionCases(tc.raw)
			if tc.want == "" {
				if got != "" {
					t.Errorf("want empty, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tc.want) {
				t.Errorf("want substring %q in %q", tc.want, got)
			}
		})
	}
}
