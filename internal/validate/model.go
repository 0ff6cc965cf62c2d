// Package validate runs the read-only consistency battery over the
// relationship edges and compiled hierarchy records.
package validate

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Severity classifies a finding. Errors are invariant violations the
// pipeline should never produce; warnings are data-quality diagnostics.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validator hit.
type Finding struct {
	Check    string   `yaml:"check" json:"check"`
	Severity Severity `yaml:"severity" json:"severity"`
	Pair     string   `yaml:"pair,omitempty" json:"pair,omitempty"`
	GeoType  string   `yaml:"geo_type,omitempty" json:"geo_type,omitempty"`
	Geoid    string   `yaml:"geoid" json:"geoid"`
	Detail   string   `yaml:"detail" json:"detail"`
}

// Report is the full battery result.
type Report struct {
	RanAt    time.Time `yaml:"ran_at" json:"ran_at"`
	Errors   int       `yaml:"errors" json:"errors"`
	Warnings int       `yaml:"warnings" json:"warnings"`
	Findings []Finding `yaml:"findings" json:"findings"`
}

// NewReport tallies findings into a Report.
func NewReport(findings []Finding) *Report {
	r := &Report{RanAt: time.Now().UTC(), Findings: findings}
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			r.Errors++
		default:
			r.Warnings++
		}
	}
	return r
}

// WriteYAML serializes the report.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "validate: encode report")
	}
	return eris.Wrap(enc.Close(), "validate: close report encoder")
}
