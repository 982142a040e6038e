// Package marc provides read access to MARC-addressed fields of a
// bibliographic record. Fields are addressed by six-character specs such as
// "245__a": three-digit tag, two indicators ('_' meaning blank) and a
// subfield code.
package marc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subfield is one code/value pair inside a MARC field instance.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Field is one instance of a MARC field: its two indicators and subfields.
type Field struct {
	Ind1      string     `json:"ind1"`
	Ind2      string     `json:"ind2"`
	Subfields []Subfield `json:"subfields"`
}

// Record maps a lowercase tag ("245") to all instances of that field.
type Record map[string][]Field

// FieldSpec is a parsed six-character field address.
type FieldSpec struct {
	Tag  string
	Ind1 string
	Ind2 string
	Code string
}

// ParseFieldSpec splits a spec like "700__u" into its parts. Indicators are
// lowercased and '_' is translated to a blank indicator.
func ParseFieldSpec(spec string) (FieldSpec, error) {
	if len(spec) != 6 {
		return FieldSpec{}, fmt.Errorf("malformed field spec %q: want 6 characters", spec)
	}
	ind := func(c byte) string {
		s := strings.ToLower(string(c))
		if s == "_" {
			return " "
		}
		return s
	}
	return FieldSpec{
		Tag:  strings.ToLower(spec[0:3]),
		Ind1: ind(spec[3]),
		Ind2: ind(spec[4]),
		Code: strings.ToLower(spec[5:6]),
	}, nil
}

func (f Field) matches(spec FieldSpec) bool {
	ind := func(s string) string {
		s = strings.ToLower(s)
		if s == "" || s == "_" {
			return " "
		}
		return s
	}
	return ind(f.Ind1) == spec.Ind1 && ind(f.Ind2) == spec.Ind2
}

func (f Field) subfield(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if strings.ToLower(sf.Code) == code {
			return sf.Value, true
		}
	}
	return "", false
}

// First returns the first value addressed by spec, or "".
func (r Record) First(spec string) string {
	fs, err := ParseFieldSpec(spec)
	if err != nil {
		return ""
	}
	for _, field := range r[fs.Tag] {
		if !field.matches(fs) {
			continue
		}
		if v, ok := field.subfield(fs.Code); ok {
			return v
		}
		// Only the first matching field instance counts.
		return ""
	}
	return ""
}

// All returns one value per matching field instance, skipping instances
// without the requested subfield code.
func (r Record) All(spec string) []string {
	fs, err := ParseFieldSpec(spec)
	if err != nil {
		return nil
	}
	var values []string
	for _, field := range r[fs.Tag] {
		if !field.matches(fs) {
			continue
		}
		if v, ok := field.subfield(fs.Code); ok {
			values = append(values, v)
		}
	}
	return values
}

// Fields returns, for each matching field instance, the values of the given
// subfield codes, aligned by instance. Missing codes yield "".
func (r Record) Fields(spec string, codes ...string) [][]string {
	fs, err := ParseFieldSpec(spec)
	if err != nil {
		return nil
	}
	var rows [][]string
	for _, field := range r[fs.Tag] {
		if !field.matches(fs) {
			continue
		}
		row := make([]string, len(codes))
		for i, code := range codes {
			row[i], _ = field.subfield(strings.ToLower(code))
		}
		rows = append(rows, row)
	}
	return rows
}

// Decode parses a JSON-serialized record.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return r, nil
}

// Field specs used to derive submission metadata, matching the tag layout
// of the record store.
const (
	SpecTitle                  = "245__a"
	SpecAbstract               = "520__a"
	SpecAuthorName             = "100__a"
	SpecAuthorAffiliation      = "100__u"
	SpecAuthorEmail            = "859__f"
	SpecContributorName        = "700__a"
	SpecReportNumber           = "037__a"
	SpecAdditionalReportNumber = "088__a"
	SpecDOI                    = "909C4a"
	SpecJournalCode            = "909C4v"
	SpecJournalTitle           = "909C4p"
	SpecJournalPage            = "909C4c"
	SpecJournalYear            = "909C4y"
	SpecComments               = "500__a"
	SpecInternalNotes          = "595__a"
)
