package dataset

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	// Configuration Errors
	ErrInvalidFormat   = errors.ErrorCode("dataset_invalid_format")
	ErrInvalidJSONMode = errors.ErrorCode("dataset_invalid_json_mode")
	ErrInvalidPath     = errors.ErrorCode("dataset_invalid_path")
	ErrNoSchema        = errors.ErrorCode("dataset_no_schema")

	// Write Errors
	ErrWriterIO       = errors.ErrWriterIO
	ErrSchemaMismatch = errors.ErrorCode("dataset_schema_mismatch")
	ErrWriterClosed   = errors.ErrorCode("dataset_writer_closed")

	// Read Errors
	ErrCorruptDataset = errors.ErrorCode("dataset_corrupt")
)
