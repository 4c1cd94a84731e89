package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrConfigInvalid   ErrorCode = "config_invalid"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Collection errors
	ErrSensorUnavailable ErrorCode = "sensor_unavailable"
	ErrMalformedField    ErrorCode = "malformed_field"
	ErrWriterIO          ErrorCode = "writer_io_failure"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Operation errors
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrNotImplemented:    "Operation not implemented",
	ErrAlreadyRunning:    "Another collector is already running",
	ErrConfigInvalid:     "Invalid configuration",
	ErrReadConfig:        "Failed to read configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrSensorUnavailable: "Sensor unavailable",
	ErrMalformedField:    "Malformed field",
	ErrWriterIO:          "Dataset write failed",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrTimeout:           "Operation timed out",
	ErrInvalidOperation:  "Invalid operation",
}

// fatalCodes stop collection when they reach the scheduler.
var fatalCodes = map[ErrorCode]bool{
	ErrWriterIO:      true,
	ErrConfigInvalid: true,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
