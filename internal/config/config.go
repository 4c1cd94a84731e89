package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/sensor"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Flags use the same names with dashes.
const (
	keyInterval            = "interval_seconds"
	keyOutputPath          = "output_path"
	keyOutputFormat        = "output_format"
	keyJSONMode            = "json_mode"
	keyRotateAfterRecords  = "rotate_after_records"
	keyRotateAfterDuration = "rotate_after_duration"
	keyReadTimeout         = "read_timeout_seconds"
	keySources             = "sources"
	keyProcessTopN         = "process_top_n"
	keyBatteryPath         = "battery_path"
	keyNoDataMarker        = "no_data_marker"
	keyFlushEvery          = "flush_every"
	keySync                = "sync"
	keyMaxTicks            = "max_ticks"
	keyRunDuration         = "run_duration"
	keyCatalogPath         = "catalog_path"
	keyMetricsAddr         = "metrics_addr"
	keyPIDFile             = "pid_file"
	keyLogLevel            = "log_level"
	keyConfig              = "config"
)

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func defaultSearchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", DefaultConfigName))
	}
	return append(dirs, "/etc/"+DefaultConfigName)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(DefaultConfigName, pflag.ContinueOnError)

	fs.String(flagName(keyConfig), "", "Path to a toml or yaml configuration file")
	fs.Float64(flagName(keyInterval), DefaultInterval.Seconds(), "Seconds between collection ticks")
	fs.String(flagName(keyOutputPath), DefaultOutputPath, "Dataset file path")
	fs.String(flagName(keyOutputFormat), "", "Dataset format: csv or json (default: from output path extension)")
	fs.String(flagName(keyJSONMode), string(dataset.JSONLines), "JSON layout: lines or array")
	fs.Int(flagName(keyRotateAfterRecords), 0, "Start a new dataset file after this many records (0 disables)")
	fs.String(flagName(keyRotateAfterDuration), "0", "Start a new dataset file after this long, e.g. 1h or seconds (0 disables)")
	fs.Float64(flagName(keyReadTimeout), DefaultReadTimeout.Seconds(), "Seconds each sensor read may take")
	fs.StringSlice(flagName(keySources), sensor.DefaultSources, "Sensor sources to sample")
	fs.Int(flagName(keyProcessTopN), DefaultProcessTopN, "Processes listed per top CPU and memory ranking")
	fs.String(flagName(keyBatteryPath), DefaultBatteryPath, "Power supply sysfs directory")
	fs.String(flagName(keyNoDataMarker), "", "CSV cell text for missing values")
	fs.Int(flagName(keyFlushEvery), DefaultFlushEvery, "Records buffered per dataset write")
	fs.Bool(flagName(keySync), true, "fsync the dataset after every write")
	fs.Int(flagName(keyMaxTicks), 0, "Stop after this many ticks (0 is unlimited)")
	fs.String(flagName(keyRunDuration), "0", "Stop after this long, e.g. 30m or seconds (0 is unlimited)")
	fs.String(flagName(keyCatalogPath), "", "sqlite catalog of dataset files (empty disables)")
	fs.String(flagName(keyMetricsAddr), "", "Address for the Prometheus /metrics endpoint (empty disables)")
	fs.String(flagName(keyPIDFile), "", "PID file guarding against concurrent collectors")
	fs.String(flagName(keyLogLevel), string(DefaultLogLevel), "Log level: debug, info, warning or error")

	return fs
}

// Usage returns the flag help text
func Usage() string {
	return newFlagSet().FlagUsages()
}

// Load reads the configuration from defaults, the config file, the
// environment and args, in increasing order of precedence, and validates
// it. Any invalid value yields a ConfigInvalid error.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:  DefaultEnvPrefix,
		searchDirs: defaultSearchDirs(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrConfigInvalid, errFactory.Wrap(ErrBindFlags, err))
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(ErrConfigInvalid, errFactory.Wrap(ErrBindFlags, bindErr))
	}

	configFile := o.configPath
	if f := fs.Lookup(flagName(keyConfig)); f.Changed {
		configFile = f.Value.String()
	} else if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		configFile = env
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		for _, dir := range o.searchDirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(ErrConfigInvalid, errFactory.Wrap(ErrReadConfig, err))
		}
	}

	rotateAfter, err := duration(v, keyRotateAfterDuration)
	if err != nil {
		return nil, err
	}
	runDuration, err := duration(v, keyRunDuration)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Interval:            seconds(v.GetFloat64(keyInterval)),
		OutputPath:          strings.TrimSpace(v.GetString(keyOutputPath)),
		OutputFormat:        dataset.Format(strings.ToLower(strings.TrimSpace(v.GetString(keyOutputFormat)))),
		JSONMode:            dataset.JSONMode(strings.ToLower(strings.TrimSpace(v.GetString(keyJSONMode)))),
		RotateAfterRecords:  v.GetInt(keyRotateAfterRecords),
		RotateAfterDuration: rotateAfter,
		ReadTimeout:         seconds(v.GetFloat64(keyReadTimeout)),
		Sources:             splitList(v.Get(keySources)),
		ProcessTopN:         v.GetInt(keyProcessTopN),
		BatteryPath:         v.GetString(keyBatteryPath),
		NoDataMarker:        v.GetString(keyNoDataMarker),
		FlushEvery:          v.GetInt(keyFlushEvery),
		Sync:                v.GetBool(keySync),
		MaxTicks:            v.GetInt(keyMaxTicks),
		RunDuration:         runDuration,
		CatalogPath:         strings.TrimSpace(v.GetString(keyCatalogPath)),
		MetricsAddr:         strings.TrimSpace(v.GetString(keyMetricsAddr)),
		PIDFile:             strings.TrimSpace(v.GetString(keyPIDFile)),
		LogLevel:            LogLevel(strings.ToLower(strings.TrimSpace(v.GetString(keyLogLevel)))),
		ConfigFile:          v.ConfigFileUsed(),
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = inferFormat(cfg.OutputPath)
	}
	if cfg.JSONMode == "" {
		cfg.JSONMode = dataset.JSONLines
	}
	if cfg.LogLevel == "warn" {
		cfg.LogLevel = LogLevelWarning
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every option and reports the first invalid one
func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(code errors.ErrorCode, field string, value any, reason string) error {
		return errFactory.Wrap(ErrConfigInvalid, errFactory.WithData(code, FieldError{
			Field:  field,
			Value:  value,
			Reason: reason,
		}))
	}

	switch {
	case c.Interval <= 0:
		return invalid(ErrInvalidInterval, keyInterval, c.Interval.Seconds(), "must be greater than zero")
	case c.ReadTimeout <= 0 || c.ReadTimeout > MaxReadTimeout:
		return invalid(ErrInvalidReadTimeout, keyReadTimeout, c.ReadTimeout.Seconds(), "must be greater than zero and at most 60")
	case c.OutputPath == "":
		return invalid(ErrInvalidOutputPath, keyOutputPath, c.OutputPath, "must not be empty")
	case isDir(c.OutputPath):
		return invalid(ErrInvalidOutputPath, keyOutputPath, c.OutputPath, "is a directory")
	}

	if _, err := dataset.ParseFormat(string(c.OutputFormat)); err != nil {
		return invalid(ErrInvalidFormat, keyOutputFormat, c.OutputFormat, "must be csv or json")
	}
	if _, err := dataset.ParseJSONMode(string(c.JSONMode)); err != nil {
		return invalid(ErrInvalidFormat, keyJSONMode, c.JSONMode, "must be lines or array")
	}

	if len(c.Sources) == 0 {
		return invalid(ErrInvalidSources, keySources, c.Sources, "at least one source is required")
	}
	for _, name := range c.Sources {
		if !sensor.IsKnown(name) {
			return invalid(ErrInvalidSources, keySources, name, "unknown source")
		}
	}

	switch {
	case c.ProcessTopN < 1:
		return invalid(ErrInvalidValue, keyProcessTopN, c.ProcessTopN, "must be at least 1")
	case c.FlushEvery < 1:
		return invalid(ErrInvalidValue, keyFlushEvery, c.FlushEvery, "must be at least 1")
	case c.RotateAfterRecords < 0:
		return invalid(ErrInvalidValue, keyRotateAfterRecords, c.RotateAfterRecords, "must not be negative")
	case c.RotateAfterDuration < 0:
		return invalid(ErrInvalidValue, keyRotateAfterDuration, c.RotateAfterDuration.String(), "must not be negative")
	case c.MaxTicks < 0:
		return invalid(ErrInvalidValue, keyMaxTicks, c.MaxTicks, "must not be negative")
	case c.RunDuration < 0:
		return invalid(ErrInvalidValue, keyRunDuration, c.RunDuration.String(), "must not be negative")
	case strings.ContainsAny(c.NoDataMarker, "\r\n"):
		return invalid(ErrInvalidValue, keyNoDataMarker, c.NoDataMarker, "must not contain line breaks")
	case !c.LogLevel.IsValid():
		return invalid(ErrInvalidLogLevel, keyLogLevel, c.LogLevel, "must be debug, info, warning or error")
	}

	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// duration reads key as a Go duration string ("90s", "1h30m") or as a
// bare number of seconds, matching the *_seconds options.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.Get(key)

	var (
		d   time.Duration
		err error
	)
	switch val := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		d = val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		if f, perr := strconv.ParseFloat(s, 64); perr == nil {
			d = seconds(f)
		} else {
			d, err = time.ParseDuration(s)
		}
	default:
		var f float64
		if f, err = cast.ToFloat64E(val); err == nil {
			d = seconds(f)
		}
	}

	if err != nil {
		errFactory := errors.New()
		return 0, errFactory.Wrap(ErrConfigInvalid, errFactory.WithData(ErrInvalidValue, FieldError{
			Field:  key,
			Value:  raw,
			Reason: "must be a duration such as 90s or a number of seconds",
		}))
	}

	return d, nil
}

func inferFormat(path string) dataset.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return dataset.FormatJSON
	default:
		return dataset.FormatCSV
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// splitList accepts both lists and comma separated strings, as env
// variables and config files provide either.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		for _, s := range v {
			parts = append(parts, strings.Split(s, ",")...)
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				parts = append(parts, strings.Split(str, ",")...)
			}
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
