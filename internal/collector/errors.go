package collector

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	ErrInvalidConfig    = errors.ErrConfigInvalid
	ErrInvalidOperation = errors.ErrInvalidOperation
	ErrWriterIO         = errors.ErrWriterIO
)
