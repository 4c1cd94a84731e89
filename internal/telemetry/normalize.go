package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
)

// Largest integer a float64 holds exactly
const maxExactInt = 1 << 53

// Diagnostic describes a field that could not be coerced to its declared
// type and was replaced by the no-data marker.
type Diagnostic struct {
	Field  string
	Raw    any
	Reason string
}

// Err returns the diagnostic as a MalformedField error
func (d Diagnostic) Err() error {
	return errors.New().WithData(ErrMalformedField, fmt.Sprintf("%s (%T %v): %s", d.Field, d.Raw, d.Raw, d.Reason))
}

// Normalize shapes a raw reading into a record of the given schema.
// Missing fields become Absent. Fields that cannot be safely coerced become
// Absent and are reported as diagnostics. Normalize has no side effects.
func Normalize(reading Reading, schema *Schema) (Record, []Diagnostic) {
	rec := Record{
		Schema: schema,
		Values: make([]Value, schema.Len()),
	}

	var diags []Diagnostic
	rec.Values[0] = Time(reading.Timestamp)

	for i := 1; i < schema.Len(); i++ {
		f := schema.Field(i)

		raw, ok := reading.Values[f.Name]
		if !ok {
			continue
		}

		v, reason := coerce(raw, f.Type)
		if reason != "" {
			diags = append(diags, Diagnostic{Field: f.Name, Raw: raw, Reason: reason})
			continue
		}
		rec.Values[i] = v
	}

	return rec, diags
}

// coerce converts raw to typ. A non-empty reason means the value was
// rejected.
func coerce(raw any, typ FieldType) (Value, string) {
	if raw == nil {
		return Absent(), ""
	}
	if v, ok := raw.(Value); ok {
		if v.IsAbsent() {
			return v, ""
		}
		raw = v.Interface()
	}

	switch typ {
	case TypeNumber:
		return toNumber(raw)
	case TypeText:
		return toText(raw)
	case TypeBool:
		return toBool(raw)
	case TypeTimestamp:
		return toTime(raw)
	default:
		return Absent(), "unknown field type " + string(typ)
	}
}

func toNumber(raw any) (Value, string) {
	var f float64

	switch n := raw.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return intNumber(int64(n))
	case int8:
		return intNumber(int64(n))
	case int16:
		return intNumber(int64(n))
	case int32:
		return intNumber(int64(n))
	case int64:
		return intNumber(n)
	case uint:
		return uintNumber(uint64(n))
	case uint8:
		return uintNumber(uint64(n))
	case uint16:
		return uintNumber(uint64(n))
	case uint32:
		return uintNumber(uint64(n))
	case uint64:
		return uintNumber(n)
	case bool:
		if n {
			return Number(1), ""
		}
		return Number(0), ""
	case json.Number:
		return toNumber(string(n))
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return Absent(), ""
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Absent(), "not a number"
		}
		f = parsed
	default:
		return Absent(), "unsupported type for number"
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Absent(), "not a finite number"
	}

	return Number(f), ""
}

func intNumber(n int64) (Value, string) {
	if n > maxExactInt || n < -maxExactInt {
		return Absent(), "integer not exactly representable"
	}
	return Number(float64(n)), ""
}

func uintNumber(n uint64) (Value, string) {
	if n > maxExactInt {
		return Absent(), "integer not exactly representable"
	}
	return Number(float64(n)), ""
}

// toText maps empty text to Absent, which is how a CSV dataset with the
// default marker reads it back.
func toText(raw any) (Value, string) {
	switch s := raw.(type) {
	case string:
		return nonEmptyText(s), ""
	case []byte:
		return nonEmptyText(string(s)), ""
	case bool:
		return Text(strconv.FormatBool(s)), ""
	case fmt.Stringer:
		return nonEmptyText(s.String()), ""
	}

	if v, reason := toNumber(raw); reason == "" && !v.IsAbsent() {
		return Text(v.Format("")), ""
	}

	return Absent(), "unsupported type for text"
}

func nonEmptyText(s string) Value {
	if s == "" {
		return Absent()
	}
	return Text(s)
}

func toBool(raw any) (Value, string) {
	switch b := raw.(type) {
	case bool:
		return Bool(b), ""
	case string:
		s := strings.TrimSpace(b)
		if s == "" {
			return Absent(), ""
		}
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			return Absent(), "not a boolean"
		}
		return Bool(parsed), ""
	}

	n, reason := toNumber(raw)
	if reason != "" {
		return Absent(), "unsupported type for bool"
	}
	f, _ := n.Float()
	switch f {
	case 0:
		return Bool(false), ""
	case 1:
		return Bool(true), ""
	default:
		return Absent(), "number is not 0 or 1"
	}
}

func toTime(raw any) (Value, string) {
	switch t := raw.(type) {
	case time.Time:
		if t.IsZero() {
			return Absent(), ""
		}
		return Time(t), ""
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t))
		if err != nil {
			return Absent(), "not an RFC3339 timestamp"
		}
		return Time(parsed), ""
	default:
		return Absent(), "unsupported type for timestamp"
	}
}
