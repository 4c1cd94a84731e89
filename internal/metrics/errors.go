package metrics

import "codeberg.org/mutker/devtelemetry/internal/errors"

const (
	ErrListen = errors.ErrorCode("metrics_listen_failed")
	ErrServe  = errors.ErrorCode("metrics_serve_failed")
)
