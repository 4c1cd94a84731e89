package config

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	ErrConfigInvalid = errors.ErrConfigInvalid
	ErrReadConfig    = errors.ErrReadConfig
	ErrBindFlags     = errors.ErrBindFlags

	// Validation Errors
	ErrInvalidInterval    = errors.ErrInvalidInterval
	ErrInvalidLogLevel    = errors.ErrInvalidLogLevel
	ErrInvalidReadTimeout = errors.ErrorCode("config_invalid_read_timeout")
	ErrInvalidOutputPath  = errors.ErrorCode("config_invalid_output_path")
	ErrInvalidFormat      = errors.ErrorCode("config_invalid_format")
	ErrInvalidSources     = errors.ErrorCode("config_invalid_sources")
	ErrInvalidValue       = errors.ErrorCode("config_invalid_value")
)
