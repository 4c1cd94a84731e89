package telemetry

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	// Schema Errors
	ErrInvalidSchema  = errors.ErrorCode("telemetry_invalid_schema")
	ErrDuplicateField = errors.ErrorCode("telemetry_duplicate_field")
	ErrReservedField  = errors.ErrorCode("telemetry_reserved_field")

	// Normalization Errors
	ErrMalformedField = errors.ErrMalformedField
)
