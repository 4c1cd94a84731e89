package catalog

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("catalog_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("catalog_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("catalog_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("catalog_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("catalog_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("catalog_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
)
