package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// admissionCase is one historical admission outcome as found in the
// admission_data column: a JSON object with free-form string values.
type admissionCase struct {
	Year       string `json:"year"`
	Outcome    string `json:"outcome"`
	SchoolTier string `json:"school_tier"`
	Major      string `json:"major"`
	GPA        string `json:"gpa"`
	Research   string `json:"research"`
	Internship string `json:"internship"`
	Notes      string `json:"notes"`
}

// FlattenAdmissionCases renders the admission_data column — a JSON array of
// case objects — into one readable paragraph suitable for embedding. The
// source data is hand-curated, so malformed JSON is common; in that case the
// raw string is kept rather than dropped, since it still carries semantic
// signal. Empty or "null" input yields "".
func FlattenAdmissionCases(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}

	var cases []admissionCase
	if err := json.Unmarshal([]byte(raw), &cases); err != nil {
		return raw
	}

	parts := make([]string, 0, len(cases))
	for _, c := range cases {
		var b strings.Builder
		fmt.Fprintf(&b, "Admitted %s: %s.", orNA(c.Year), orNA(c.Outcome))
		fmt.Fprintf(&b, " Applicant background: %s, %s major, GPA/rank %s,",
			orNA(c.SchoolTier), orNA(c.Major), orNA(c.GPA))
		fmt.Fprintf(&b, " research %s, internships %s.", orNA(c.Research), orNA(c.Internship))
		if c.Notes != "" {
			fmt.Fprintf(&b, " Notes: %s.", c.Notes)
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, " ")
}

// orNA substitutes "n/a" for empty case attributes.
func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
