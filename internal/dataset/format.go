package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// JSONMode selects how JSON datasets are laid out
type JSONMode string

const (
	// JSONLines writes one object per line
	JSONLines JSONMode = "lines"
	// JSONArray keeps the file a valid JSON array after every flush
	JSONArray JSONMode = "array"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", errors.New().WithData(ErrInvalidFormat, s)
	}
}

func ParseJSONMode(s string) (JSONMode, error) {
	switch m := JSONMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return JSONLines, nil
	case JSONLines, JSONArray:
		return m, nil
	default:
		return "", errors.New().WithData(ErrInvalidJSONMode, s)
	}
}

// Ext returns the file extension for the format and mode
func (f Format) Ext(mode JSONMode) string {
	if f == FormatJSON && mode != JSONArray {
		return ".jsonl"
	}
	return "." + string(f)
}

// encoder renders records into the on-disk layout. header and trailer
// frame the rows; a file holding only the header and trailer is a valid,
// empty dataset.
type encoder interface {
	header() []byte
	row(rec telemetry.Record, first bool) ([]byte, error)
	trailer() []byte
}

func newEncoder(format Format, mode JSONMode, schema *telemetry.Schema, marker string) encoder {
	if format == FormatCSV {
		return &csvEncoder{names: schema.Names(), marker: marker}
	}
	if mode == JSONArray {
		return &arrayEncoder{names: schema.Names()}
	}
	return &linesEncoder{names: schema.Names()}
}

type csvEncoder struct {
	names  []string
	marker string
}

// CSV rows are kept on a single physical line so a torn tail can be cut
// at the last newline; line breaks inside text values become spaces.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func (e *csvEncoder) header() []byte {
	b, _ := csvLine(e.names)
	return b
}

func (e *csvEncoder) row(rec telemetry.Record, _ bool) ([]byte, error) {
	cells := make([]string, len(rec.Values))
	for i, v := range rec.Values {
		cells[i] = lineBreaks.Replace(v.Format(e.marker))
	}
	return csvLine(cells)
}

func (*csvEncoder) trailer() []byte { return nil }

func csvLine(cells []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cells); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type linesEncoder struct {
	names []string
}

func (*linesEncoder) header() []byte { return nil }

func (e *linesEncoder) row(rec telemetry.Record, _ bool) ([]byte, error) {
	obj, err := jsonObject(e.names, rec)
	if err != nil {
		return nil, err
	}
	return append(obj, '\n'), nil
}

func (*linesEncoder) trailer() []byte { return nil }

type arrayEncoder struct {
	names []string
}

const (
	arrayHeader  = "[\n"
	arrayTrailer = "]\n"
)

func (*arrayEncoder) header() []byte { return []byte(arrayHeader) }

func (e *arrayEncoder) row(rec telemetry.Record, first bool) ([]byte, error) {
	obj, err := jsonObject(e.names, rec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if !first {
		buf.WriteByte(',')
	}
	buf.Write(obj)
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

func (*arrayEncoder) trailer() []byte { return []byte(arrayTrailer) }

// jsonObject renders the record with keys in schema order
func jsonObject(names []string, rec telemetry.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec.Values[i].Interface())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
