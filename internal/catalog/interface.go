package catalog

import (
	"context"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
)

// Catalog keeps an index of the dataset files each collection run produced.
// It observes the dataset writers; failures are logged, never propagated
// into collection.
type Catalog interface {
	dataset.Observer
	RunID() string
	// StartRun records the run and the dataset schema it collects.
	StartRun(ctx context.Context, run Run) error
	// FinishRun stamps the run's stop time and final counters.
	FinishRun(ctx context.Context, summary Summary) error
	Datasets(ctx context.Context, runID string) ([]Entry, error)
	Close() error
}

type Run struct {
	StartedAt time.Time
	Interval  time.Duration
	Fields    []string
	Sources   []string
}

type Summary struct {
	StoppedAt       time.Time
	Ticks           int
	Records         int
	PartialFailures int
	Reason          string
}

// Entry is one dataset file as seen by the catalog
type Entry struct {
	RunID    string
	Path     string
	Format   dataset.Format
	JSONMode dataset.JSONMode
	Appended bool
	OpenedAt time.Time
	ClosedAt time.Time // zero while the file is still open
	Records  int
	Bytes    int64
}
