package collector

import (
	"context"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

// Reader produces one reading per call. *sensor.Reader implements it.
type Reader interface {
	Read(ctx context.Context) telemetry.Reading
}

// Sink persists records. *dataset.Writer and *dataset.Rotator implement it.
type Sink interface {
	Append(rec telemetry.Record) error
	Close() error
}

// Config controls the collection loop
type Config struct {
	Interval time.Duration
	// MaxTicks and RunDuration end collection cleanly; zero is unlimited
	MaxTicks    int
	RunDuration time.Duration
}

// Stats is a snapshot of the scheduler's counters
type Stats struct {
	Ticks           int
	Records         int
	PartialFailures int
	MalformedFields int
	LastTick        time.Time
}

// StopReason records why collection ended
type StopReason string

const (
	ReasonNone          StopReason = ""
	ReasonCanceled      StopReason = "canceled"
	ReasonStopped       StopReason = "stopped"
	ReasonMaxTicks      StopReason = "max_ticks"
	ReasonRunDuration   StopReason = "run_duration"
	ReasonWriterFailure StopReason = "writer_failure"
)
