package catalog

import (
	"fmt"
	"strings"
)

// Built is the output of Build: the stored-entry id, the text handed to the
// embedding client, and the flat metadata used for filtered queries. The
// document text is derived — it is not itself a stored field.
type Built struct {
	ID       string
	Document string
	Metadata map[string]any
}

// textSection is one labelled block of the embedded document, in render order.
type textSection struct {
	field string
	label string
}

// textSections lists the human-meaningful free-text attributes that go into
// the embedded document. Numeric and categorical attributes are deliberately
// excluded here — they live in metadata where they can be filtered exactly.
var textSections = []textSection{
	{"program_name", "Program"},
	{"university", "University"},
	{"region", "Region"},
	{"tier", "Tier"},
	{"duration", "Duration"},
	{"language", "Language of instruction"},
	{"degree_type", "Degree type"},
	{"pros", "Strengths"},
	{"cons", "Weaknesses"},
	{"admission_preference", "Admission preferences"},
	{"application_notes", "Application notes"},
	{"scholarship", "Scholarships"},
}

// metadataFields lists the attributes copied into filter metadata, with the
// conversion applied to each. Values must come out as scalars.
var metadataFields = []struct {
	field string
	conv  func(Record) any
}{
	{"program_name", func(r Record) any { return r.String("program_name") }},
	{"university", func(r Record) any { return r.String("university") }},
	{"region", func(r Record) any { return r.String("region") }},
	{"tier", func(r Record) any { return r.String("tier") }},
	{"duration", func(r Record) any { return r.String("duration") }},
	{"language", func(r Record) any { return r.String("language") }},
	{"degree_type", func(r Record) any { return r.String("degree_type") }},
	{"internship_required", func(r Record) any { return r.Bool("internship_required") }},
	{"thesis_required", func(r Record) any { return r.Bool("thesis_required") }},
	{"admission_data_count", func(r Record) any { return r.Int("admission_data_count") }},
}

// Build converts one Record into its embeddable document and filter metadata.
// The id is the record key unchanged, so repeated builds of the same logical
// record always produce the same id.
//
// Build fails with *ValidationError when the key is empty or a field carries
// a non-scalar value.
func Build(rec Record) (Built, error) {
	if strings.TrimSpace(rec.Key) == "" {
		return Built{}, &ValidationError{Field: "key", Reason: "must not be empty"}
	}
	for name, v := range rec.Fields {
		if v != nil && !IsScalar(v) {
			return Built{}, &ValidationError{
				Field:  name,
				Reason: fmt.Sprintf("value of type %T is not a scalar", v),
			}
		}
	}

	var b strings.Builder
	for _, sec := range textSections {
		val := strings.TrimSpace(rec.String(sec.field))
		if val == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", sec.label, val)
	}

	if cases := FlattenAdmissionCases(rec.String("admission_data")); cases != "" {
		fmt.Fprintf(&b, "Past admission cases: %s\n", cases)
	}

	if other := joinNonEmpty(rec.String("other_info"), rec.String("other_notes")); other != "" {
		fmt.Fprintf(&b, "Other information: %s\n", other)
	}

	meta := make(map[string]any, len(metadataFields))
	for _, m := range metadataFields {
		meta[m.field] = m.conv(rec)
	}

	return Built{
		ID:       rec.Key,
		Document: strings.TrimSpace(b.String()),
		Metadata: meta,
	}, nil
}

// joinNonEmpty joins the non-empty parts with a single space.
func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
