package sensor

import (
	"context"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

// Source is one independently readable sensor
type Source interface {
	// Name identifies the source in logs and failure reports
	Name() string

	// Fields declares the columns this source contributes to the schema
	Fields() []telemetry.Field

	// Read returns one raw reading. Values should be keyed by the declared
	// field names; nil values mean "no data".
	Read(ctx context.Context) (map[string]any, error)
}

// ReadFunc is the signature of a FuncSource's read callback
type ReadFunc func(ctx context.Context) (map[string]any, error)

// FuncSource adapts a function to the Source interface
type FuncSource struct {
	name   string
	fields []telemetry.Field
	fn     ReadFunc
}

func NewFunc(name string, fields []telemetry.Field, fn ReadFunc) *FuncSource {
	return &FuncSource{name: name, fields: fields, fn: fn}
}

func (s *FuncSource) Name() string { return s.name }

func (s *FuncSource) Fields() []telemetry.Field { return s.fields }

func (s *FuncSource) Read(ctx context.Context) (map[string]any, error) {
	return s.fn(ctx)
}
