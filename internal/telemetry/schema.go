package telemetry

import (
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	FieldTimestamp    = "timestamp"
	FieldBatteryLevel = "battery_level"

	// SchemaVersion is bumped whenever the sidecar layout changes
	SchemaVersion = 1
)

// Schema is the ordered, fixed field set of one dataset file. The first
// two fields are always timestamp and battery_level.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from the sensor fields declared by the
// registered sources, in registration order. A battery_level declaration
// is folded into the fixed leading column.
func NewSchema(sensorFields ...Field) (*Schema, error) {
	fields := []Field{
		{Name: FieldTimestamp, Type: TypeTimestamp},
		{Name: FieldBatteryLevel, Type: TypeNumber},
	}

	errFactory := errors.New()
	for _, f := range sensorFields {
		switch f.Name {
		case FieldTimestamp:
			return nil, errFactory.WithData(ErrReservedField, f.Name)
		case FieldBatteryLevel:
			if f.Type != TypeNumber {
				return nil, errFactory.WithData(ErrReservedField, f.Name)
			}
			continue
		}
		fields = append(fields, f)
	}

	return FromFields(fields)
}

// FromFields builds a schema from a complete field list, as read back
// from a sidecar.
func FromFields(fields []Field) (*Schema, error) {
	errFactory := errors.New()

	if len(fields) < 2 ||
		fields[0] != (Field{Name: FieldTimestamp, Type: TypeTimestamp}) ||
		fields[1] != (Field{Name: FieldBatteryLevel, Type: TypeNumber}) {
		return nil, errFactory.WithMessage(ErrInvalidSchema, "schema must start with timestamp and battery_level")
	}

	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" || !f.Type.IsValid() {
			return nil, errFactory.WithData(ErrInvalidSchema, f)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, errFactory.WithData(ErrDuplicateField, f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	return s, nil
}

// Fields returns a copy of the ordered fields
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the ordered field names, i.e. the CSV header
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) Len() int { return len(s.fields) }

func (s *Schema) Field(i int) Field { return s.fields[i] }

func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Equal reports whether both schemas have the same fields in the same order
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

type schemaDoc struct {
	Version int     `yaml:"version"`
	Fields  []Field `yaml:"fields"`
}

func (s *Schema) MarshalYAML() (interface{}, error) {
	return schemaDoc{Version: SchemaVersion, Fields: s.fields}, nil
}

func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var doc schemaDoc
	if err := node.Decode(&doc); err != nil {
		return errors.New().Wrap(ErrInvalidSchema, err)
	}
	if doc.Version != SchemaVersion {
		return errors.New().WithData(ErrInvalidSchema, struct {
			Version int
			Want    int
		}{
			Version: doc.Version,
			Want:    SchemaVersion,
		})
	}

	parsed, err := FromFields(doc.Fields)
	if err != nil {
		return err
	}
	*s = *parsed

	return nil
}
