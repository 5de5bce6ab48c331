package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedReply is returned when the structuring reply cannot be read
// as a JSON object
var ErrMalformedReply = errors.New("structuring reply is malformed")

// Field is one value of a report. It is either present with a non-empty
// display string or absent, which serialises as JSON null.
type Field struct {
	value   string
	present bool
}

// Present returns a field holding v. An empty v yields an absent field.
func Present(v string) Field {
	if v == "" {
		return Field{}
	}
	return Field{value: v, present: true}
}

// Absent returns a field with no value
func Absent() Field {
	return Field{}
}

// Value returns the display string and whether the field is present
func (f Field) Value() (string, bool) {
	return f.value, f.present
}

// IsPresent reports whether the field carries a value
func (f Field) IsPresent() bool {
	return f.present
}

// String returns the value, or "" when absent
func (f Field) String() string {
	return f.value
}

// MarshalJSON implements json.Marshaler
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("weather field must be a string or null: %w", err)
	}
	*f = Present(s)
	return nil
}

// Report is the structured, translated content of one ATIS broadcast
type Report struct {
	Airport     Field `json:"airport"`
	InfoCode    Field `json:"info_code"`
	Time        Field `json:"time"`
	Runway      Field `json:"runway"`
	Approach    Field `json:"approach"`
	Wind        Field `json:"wind"`
	Visibility  Field `json:"visibility"`
	Clouds      Field `json:"clouds"`
	Temperature Field `json:"temperature"`
	Dewpoint    Field `json:"dewpoint"`
	QNH         Field `json:"qnh"`
	Remarks     Field `json:"remarks"`
	Summary     Field `json:"summary"`
}

// FieldSpec describes one report key: the hint given to the model and the
// label used when drawing it
type FieldSpec struct {
	Key   string
	Hint  string
	Label string
	get   func(*Report) *Field
}

// Fields lists the report keys in display order
var Fields = []FieldSpec{
	{Key: "airport", Hint: "airport name", Label: "Airport", get: func(r *Report) *Field { return &r.Airport }},
	{Key: "info_code", Hint: "information letter, e.g. Alpha", Label: "Information", get: func(r *Report) *Field { return &r.InfoCode }},
	{Key: "time", Hint: "observation time in UTC", Label: "Time", get: func(r *Report) *Field { return &r.Time }},
	{Key: "runway", Hint: "runway(s) in use", Label: "Runway", get: func(r *Report) *Field { return &r.Runway }},
	{Key: "approach", Hint: "expected approach procedure", Label: "Approach", get: func(r *Report) *Field { return &r.Approach }},
	{Key: "wind", Hint: "wind direction and speed, e.g. 050 degrees 8 knots", Label: "Wind", get: func(r *Report) *Field { return &r.Wind }},
	{Key: "visibility", Hint: "visibility", Label: "Visibility", get: func(r *Report) *Field { return &r.Visibility }},
	{Key: "clouds", Hint: "cloud layers with height and coverage", Label: "Clouds", get: func(r *Report) *Field { return &r.Clouds }},
	{Key: "temperature", Hint: "temperature", Label: "Temperature", get: func(r *Report) *Field { return &r.Temperature }},
	{Key: "dewpoint", Hint: "dew point", Label: "Dew point", get: func(r *Report) *Field { return &r.Dewpoint }},
	{Key: "qnh", Hint: "altimeter setting (QNH)", Label: "QNH", get: func(r *Report) *Field { return &r.QNH }},
	{Key: "remarks", Hint: "other remarks or notices", Label: "Remarks", get: func(r *Report) *Field { return &r.Remarks }},
	{Key: "summary", Hint: "short plain-language summary", Label: "Summary", get: func(r *Report) *Field { return &r.Summary }},
}

// Get returns the field stored under key
func (r *Report) Get(key string) (Field, bool) {
	for _, def := range Fields {
		if def.Key == key {
			return *def.get(r), true
		}
	}
	return Field{}, false
}

// PresentCount returns how many fields carry a value
func (r *Report) PresentCount() int {
	count := 0
	for _, def := range Fields {
		if def.get(r).present {
			count++
		}
	}
	return count
}
