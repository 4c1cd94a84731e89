package telemetry

import (
	"math"
	"strconv"
	"time"
)

type Kind uint8

const (
	KindAbsent Kind = iota
	KindNumber
	KindText
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTime:
		return "timestamp"
	default:
		return "absent"
	}
}

// Value is a tagged field value. The zero Value is the "no data" marker.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	t    time.Time
}

func Absent() Value { return Value{} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) Str() (string, bool) {
	return v.text, v.kind == KindText
}

func (v Value) Boolean() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindTime
}

// Format renders the value as dataset text; absent values render as marker.
func (v Value) Format(marker string) string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return marker
	}
}

// Interface returns the value as a plain Go value, nil when absent.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}
