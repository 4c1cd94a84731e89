package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWritesDataset(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "o.csv")

	code := run([]string{
		"--sources", "simulated",
		"--interval-seconds", "0.01",
		"--max-ticks", "2",
		"--output-path", out,
		"--pid-file", filepath.Join(dir, "p"),
	})
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "header and two rows")
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,battery_level"))

	assert.NoFileExists(t, filepath.Join(dir, "p"), "pid file removed on exit")
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"invalid interval", []string{"--interval-seconds", "0"}, exitConfig},
		{"unknown flag", []string{"--fan-speed", "80"}, exitConfig},
		{"unwritable output", []string{
			"--sources", "simulated",
			"--interval-seconds", "0.01",
			"--max-ticks", "1",
			"--output-path", filepath.Join(blocker, "o.csv"),
			"--pid-file", filepath.Join(dir, "p"),
		}, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}
