package telemetry

import (
	"time"
)

// FieldType is the declared type of a dataset column
type FieldType string

const (
	TypeNumber    FieldType = "number"
	TypeText      FieldType = "text"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
)

// IsValid returns whether the field type is known
func (t FieldType) IsValid() bool {
	switch t {
	case TypeNumber, TypeText, TypeBool, TypeTimestamp:
		return true
	default:
		return false
	}
}

// Field is one named, typed column of the dataset
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
}

// Reading is the raw output of all sensor sources for one tick. Values
// maps field names to whatever the sources returned; Failures maps the
// names of sources that failed this tick to their error.
type Reading struct {
	Timestamp time.Time
	Values    map[string]any
	Failures  map[string]error
}

// Record is a normalized row aligned with its schema. Values[0] is always
// the timestamp.
type Record struct {
	Schema *Schema
	Values []Value
}

// Timestamp returns the capture time of the record
func (r Record) Timestamp() time.Time {
	if len(r.Values) == 0 {
		return time.Time{}
	}
	ts, _ := r.Values[0].Time()
	return ts
}

// Get returns the value of the named field, or Absent if the schema has no
// such field.
func (r Record) Get(name string) Value {
	if r.Schema == nil {
		return Absent()
	}
	i, ok := r.Schema.Index(name)
	if !ok || i >= len(r.Values) {
		return Absent()
	}
	return r.Values[i]
}

// BatteryLevel returns the battery level and whether it was present
func (r Record) BatteryLevel() (float64, bool) {
	return r.Get(FieldBatteryLevel).Float()
}

// Equal reports whether both records carry the same values in the same
// order.
func (r Record) Equal(o Record) bool {
	if len(r.Values) != len(o.Values) {
		return false
	}
	for i := range r.Values {
		if !r.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}
