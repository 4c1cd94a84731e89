package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/config"
	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// load isolates Load from config files and env of the machine running the
// tests
func load(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	return config.Load(args, config.WithSearchDirs(t.TempDir()), config.WithEnvPrefix("DEVTELEMETRY_TEST"))
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, "Telemetry_Data/telemetry.csv", cfg.OutputPath)
	assert.Equal(t, dataset.FormatCSV, cfg.OutputFormat)
	assert.Equal(t, dataset.JSONLines, cfg.JSONMode)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"battery", "system", "processes", "host"}, cfg.Sources)
	assert.Equal(t, 10, cfg.ProcessTopN)
	assert.Equal(t, 1, cfg.FlushEvery)
	assert.True(t, cfg.Sync)
	assert.Zero(t, cfg.MaxTicks)
	assert.Empty(t, cfg.CatalogPath)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Rotation().Enabled())
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "devtelemetry.toml", `
interval_seconds = 1.5
output_path = "/data/run.json"
json_mode = "array"
rotate_after_records = 720
rotate_after_duration = "1h"
read_timeout_seconds = 3
sources = ["battery", "gpu"]
no_data_marker = "NA"
flush_every = 10
sync = false
max_ticks = 720
catalog_path = "/data/catalog.db"
log_level = "debug"
`)

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Interval)
	assert.Equal(t, "/data/run.json", cfg.OutputPath)
	assert.Equal(t, dataset.FormatJSON, cfg.OutputFormat, "format inferred from extension")
	assert.Equal(t, dataset.JSONArray, cfg.JSONMode)
	assert.Equal(t, dataset.Policy{MaxRecords: 720, MaxDuration: time.Hour}, cfg.Rotation())
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"battery", "gpu"}, cfg.Sources)
	assert.Equal(t, "NA", cfg.NoDataMarker)
	assert.Equal(t, 10, cfg.FlushEvery)
	assert.False(t, cfg.Sync)
	assert.Equal(t, 720, cfg.MaxTicks)
	assert.Equal(t, "/data/catalog.db", cfg.CatalogPath)
	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadYAMLFromEnv(t *testing.T) {
	path := writeConfig(t, "devtelemetry.yaml", `
interval_seconds: 10
output_format: json
sources: simulated
`)
	t.Setenv("DEVTELEMETRY_TEST_CONFIG", path)

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, dataset.FormatJSON, cfg.OutputFormat)
	assert.Equal(t, []string{"simulated"}, cfg.Sources)
}

func TestPrecedence(t *testing.T) {
	path := writeConfig(t, "devtelemetry.toml", `
interval_seconds = 30
max_ticks = 5
log_level = "error"
`)
	t.Setenv("DEVTELEMETRY_TEST_MAX_TICKS", "7")
	t.Setenv("DEVTELEMETRY_TEST_SOURCES", "battery, host")
	t.Setenv("DEVTELEMETRY_TEST_RUN_DURATION", "90s")

	cfg, err := load(t, "--config", path, "--interval-seconds", "2", "--log-level", "warn")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Interval, "flag beats file")
	assert.Equal(t, 7, cfg.MaxTicks, "env beats file")
	assert.Equal(t, []string{"battery", "host"}, cfg.Sources)
	assert.Equal(t, 90*time.Second, cfg.RunDuration)
	assert.Equal(t, config.LogLevelWarning, cfg.LogLevel)
}

func TestDurationsInSeconds(t *testing.T) {
	path := writeConfig(t, "devtelemetry.toml", `
rotate_after_duration = 3600
run_duration = 60
`)

	cfg, err := load(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.RotateAfterDuration)
	assert.Equal(t, time.Minute, cfg.RunDuration)

	t.Setenv("DEVTELEMETRY_TEST_RUN_DURATION", "1.5")
	cfg, err = load(t, "--config", path, "--rotate-after-duration", "2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.RotateAfterDuration, "flag beats file")
	assert.Equal(t, 1500*time.Millisecond, cfg.RunDuration, "env beats file")
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"zero interval", []string{"--interval-seconds", "0"}, config.ErrInvalidInterval},
		{"negative interval", []string{"--interval-seconds", "-1"}, config.ErrInvalidInterval},
		{"zero read timeout", []string{"--read-timeout-seconds", "0"}, config.ErrInvalidReadTimeout},
		{"read timeout above limit", []string{"--read-timeout-seconds", "61"}, config.ErrInvalidReadTimeout},
		{"empty output path", []string{"--output-path", " "}, config.ErrInvalidOutputPath},
		{"output path is directory", []string{"--output-path", dir}, config.ErrInvalidOutputPath},
		{"unknown format", []string{"--output-format", "parquet"}, config.ErrInvalidFormat},
		{"unknown json mode", []string{"--json-mode", "tree"}, config.ErrInvalidFormat},
		{"unknown source", []string{"--sources", "battery,lidar"}, config.ErrInvalidSources},
		{"no sources", []string{"--sources", ""}, config.ErrInvalidSources},
		{"zero flush", []string{"--flush-every", "0"}, config.ErrInvalidValue},
		{"negative max ticks", []string{"--max-ticks", "-3"}, config.ErrInvalidValue},
		{"unparseable run duration", []string{"--run-duration", "soon"}, config.ErrInvalidValue},
		{"negative rotation duration", []string{"--rotate-after-duration", "-5"}, config.ErrInvalidValue},
		{"marker with line break", []string{"--no-data-marker", "n/a\n"}, config.ErrInvalidValue},
		{"invalid log level", []string{"--log-level", "invalid"}, config.ErrInvalidLogLevel},
		{"unknown flag", []string{"--temperature", "80"}, config.ErrBindFlags},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, config.ErrConfigInvalid), "got %v", err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "devtelemetry.toml", `
This is not a valid TOML file
`)

	_, err := load(t, "--config", path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
}

func TestHelp(t *testing.T) {
	_, err := load(t, "--help")
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, config.Usage(), "--interval-seconds")
}
