package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "devtelemetry.pid")

	require.NoError(t, pid.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, pid.Remove(path))
	require.NoError(t, pid.Remove(path), "removing twice is fine")
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtelemetry.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))

	err := pid.Write(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtelemetry.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o600))

	require.NoError(t, pid.Write(path))
}
