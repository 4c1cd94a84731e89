package config

import (
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
)

const (
	DefaultEnvPrefix   = "DEVTELEMETRY"
	DefaultInterval    = 5 * time.Second
	DefaultOutputPath  = "Telemetry_Data/telemetry.csv"
	DefaultReadTimeout = 2 * time.Second
	MaxReadTimeout     = 60 * time.Second
	DefaultProcessTopN = 10
	DefaultFlushEvery  = 1
	DefaultBatteryPath = "/sys/class/power_supply"
	DefaultLogLevel    = LogLevelInfo
	DefaultConfigName  = "devtelemetry"
)

// Config is the collection configuration. It is loaded once at startup
// and never modified afterwards.
type Config struct {
	Interval     time.Duration
	OutputPath   string
	OutputFormat dataset.Format
	JSONMode     dataset.JSONMode

	RotateAfterRecords  int
	RotateAfterDuration time.Duration

	ReadTimeout time.Duration
	Sources     []string
	ProcessTopN int
	BatteryPath string

	NoDataMarker string
	FlushEvery   int
	Sync         bool

	// Zero means unlimited
	MaxTicks    int
	RunDuration time.Duration

	CatalogPath string
	MetricsAddr string
	PIDFile     string
	LogLevel    LogLevel

	// ConfigFile is the file the values were read from, if any
	ConfigFile string
}

// Rotation returns the dataset rotation policy
func (c *Config) Rotation() dataset.Policy {
	return dataset.Policy{
		MaxRecords:  c.RotateAfterRecords,
		MaxDuration: c.RotateAfterDuration,
	}
}

// Option customizes Load
type Option func(*options)

type options struct {
	configPath string
	envPrefix  string
	searchDirs []string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "DEVTELEMETRY".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithSearchDirs replaces the directories searched for devtelemetry.toml
// or devtelemetry.yaml when no file is given explicitly.
func WithSearchDirs(dirs ...string) Option {
	return func(o *options) {
		o.searchDirs = dirs
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// FieldError describes one invalid configuration value
type FieldError struct {
	Field  string
	Value  any
	Reason string
}
