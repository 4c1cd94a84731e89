package dataset

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullDisk writes half of the failAt-th buffer and reports ENOSPC. Writes
// within the existing file size still succeed.
type fullDisk struct {
	*os.File
	writes int
	failAt int
}

func (d *fullDisk) WriteAt(p []byte, off int64) (int, error) {
	d.writes++
	if d.writes != d.failAt {
		return d.File.WriteAt(p, off)
	}
	n, _ := d.File.WriteAt(p[:len(p)/2], off)
	return n, syscall.ENOSPC
}

func withOpener(fn openFunc) Option {
	return func(s *settings) { s.open = fn }
}

func failingOpener(failAt int) openFunc {
	return func(path string) (file, error) {
		f, err := openOS(path)
		if err != nil {
			return nil, err
		}
		return &fullDisk{File: f.(*os.File), failAt: failAt}, nil
	}
}

func record(schema *telemetry.Schema, ts time.Time, level float64) telemetry.Record {
	return telemetry.Record{Schema: schema, Values: []telemetry.Value{telemetry.Time(ts), telemetry.Number(level)}}
}

func TestFailedWriteLeavesNoPartialRow(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	schema, err := telemetry.NewSchema()
	require.NoError(t, err)

	tests := []struct {
		name   string
		format Format
		mode   JSONMode
		want   string
	}{
		{
			name:   "csv",
			format: FormatCSV,
			want: "timestamp,battery_level\n" +
				"2024-05-01T12:00:00Z,80\n" +
				"2024-05-01T12:00:05Z,79\n",
		},
		{
			name:   "json array",
			format: FormatJSON,
			mode:   JSONArray,
			want: "[\n" +
				`{"timestamp":"2024-05-01T12:00:00Z","battery_level":80}` + "\n" +
				`,{"timestamp":"2024-05-01T12:00:05Z","battery_level":79}` + "\n" +
				"]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+string(tt.format))

			w, err := Open(path, tt.format, schema, WithJSONMode(tt.mode), withOpener(failingOpener(3)))
			require.NoError(t, err)

			require.NoError(t, w.Append(record(schema, t0, 80)))
			require.NoError(t, w.Append(record(schema, t0.Add(5*time.Second), 79)))

			err = w.Append(record(schema, t0.Add(10*time.Second), 78))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ErrWriterIO))
			assert.True(t, errors.IsFatal(err))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestRepairLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "a\nb\n", "a\nb\n"},
		{"torn", "a\nb\nc", "a\nb\n"},
		{"no newline", "abc", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f")
			require.NoError(t, os.WriteFile(path, []byte(tt.in), 0o644))

			f, err := os.OpenFile(path, os.O_RDWR, 0)
			require.NoError(t, err)
			defer f.Close()

			size, err := repairLines(f, int64(len(tt.in)))
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), size)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestRepairArrayRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	_, _, err = repairArray(f, 18)
	assert.ErrorIs(t, err, errCorrupt)
}

func TestNextPathAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	first := NextPath(filepath.Join(dir, "telemetry.csv"), FormatCSV, "", ts)
	assert.Equal(t, filepath.Join(dir, "telemetry_20240501T100000Z.csv"), first)

	require.NoError(t, os.WriteFile(first, nil, 0o644))
	second := NextPath(filepath.Join(dir, "telemetry.csv"), FormatCSV, "", ts)
	assert.Equal(t, filepath.Join(dir, "telemetry_20240501T100000Z_1.csv"), second)

	assert.Equal(t,
		filepath.Join(dir, "telemetry_20240501T100000Z.jsonl"),
		NextPath(filepath.Join(dir, "telemetry"), FormatJSON, JSONLines, ts))
}
