package sensor

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	// Source Errors
	ErrSensorUnavailable = errors.ErrSensorUnavailable
	ErrUnknownSource     = errors.ErrorCode("sensor_unknown_source")
	ErrNoBattery         = errors.ErrorCode("sensor_no_battery")
	ErrSourcePanic       = errors.ErrorCode("sensor_source_panic")

	// GPU Errors
	ErrGPUInitFailed     = errors.ErrorCode("sensor_gpu_init_failed")
	ErrGPUDeviceFailed   = errors.ErrorCode("sensor_gpu_device_failed")
	ErrGPUQueryFailed    = errors.ErrorCode("sensor_gpu_query_failed")
	ErrGPUShutdownFailed = errors.ErrorCode("sensor_gpu_shutdown_failed")
)
