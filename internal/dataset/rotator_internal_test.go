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

// closeFails releases the file but reports EIO, as NFS may on close
type closeFails struct {
	*os.File
}

func (f closeFails) Close() error {
	_ = f.File.Close()
	return syscall.EIO
}

func TestRotatorCloseFailureKeepsAcceptedRecord(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	schema, err := telemetry.NewSchema()
	require.NoError(t, err)

	opener := func(path string) (file, error) {
		f, err := openOS(path)
		if err != nil {
			return nil, err
		}
		return closeFails{File: f.(*os.File)}, nil
	}

	r, err := NewRotator(filepath.Join(dir, "telemetry.csv"), FormatCSV, schema,
		Policy{MaxRecords: 1},
		WithClock(func() time.Time { return t0 }),
		withOpener(opener),
	)
	require.NoError(t, err)

	require.NoError(t, r.Append(record(schema, t0, 80)), "record fills the file and is durable")
	first := r.Path()

	err = r.Append(record(schema, t0.Add(5*time.Second), 79))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrWriterIO))
	require.NoError(t, r.Close())

	records, err := ReadFile(first, FormatCSV, "", schema)
	require.NoError(t, err)
	require.Len(t, records, 1)
	level, _ := records[0].BatteryLevel()
	assert.Equal(t, 80.0, level)
}
