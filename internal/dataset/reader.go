package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

// ReadFile parses a dataset back into records of schema. Cells holding the
// no-data marker and JSON nulls come back as absent values.
func ReadFile(path string, format Format, mode JSONMode, schema *telemetry.Schema) ([]telemetry.Record, error) {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrWriterIO, err)
	}
	defer f.Close()

	var rows []map[string]any
	switch {
	case format == FormatCSV:
		marker := ""
		if sc, err := readSidecar(path); err == nil {
			marker = sc.NoData
		}
		rows, err = readCSV(f, marker)
	case mode == JSONArray:
		rows, err = readArray(f)
	default:
		rows, err = readLines(f)
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrCorruptDataset, err)
	}

	records := make([]telemetry.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := toRecord(row, schema)
		if err != nil {
			return nil, errFactory.Wrap(ErrCorruptDataset, err).WithData(struct {
				Path string
				Row  int
			}{path, i + 1})
		}
		records = append(records, rec)
	}

	return records, nil
}

func toRecord(row map[string]any, schema *telemetry.Schema) (telemetry.Record, error) {
	raw, _ := row[telemetry.FieldTimestamp].(string)
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return telemetry.Record{}, err
	}

	rec, diags := telemetry.Normalize(telemetry.Reading{Timestamp: ts, Values: row}, schema)
	if len(diags) > 0 {
		return telemetry.Record{}, diags[0].Err()
	}

	return rec, nil
}

func readCSV(r io.Reader, marker string) ([]map[string]any, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(header))
		for i, name := range header {
			if cells[i] == marker {
				row[name] = nil
				continue
			}
			row[name] = cells[i]
		}
		rows = append(rows, row)
	}
}

func readLines(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		row, err := decodeObject(line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return rows, sc.Err()
}

func readArray(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}

	return rows, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}

	return row, nil
}
