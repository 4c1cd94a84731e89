package dataset

import (
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/dustin/go-humanize"
)

// Policy decides when a dataset file is complete. Zero values disable the
// corresponding limit.
type Policy struct {
	MaxRecords  int
	MaxDuration time.Duration
}

// Enabled reports whether any limit is set
func (p Policy) Enabled() bool {
	return p.MaxRecords > 0 || p.MaxDuration > 0
}

// Rotator writes records to a sequence of dataset files. A record is
// written to exactly one file; rotation happens between records.
type Rotator struct {
	settings

	base   string
	format Format
	schema *telemetry.Schema
	policy Policy

	current *Writer
	started time.Time
	files   int
	closed  bool
}

// NewRotator validates the target and returns a rotator that opens its
// first file on the first Append. Without a policy every record goes to
// base; with one, each file gets a timestamp-derived name.
func NewRotator(base string, format Format, schema *telemetry.Schema, policy Policy, opts ...Option) (*Rotator, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	// Validate eagerly so configuration errors surface before collection
	if _, err := open(base, format, schema, s); err != nil {
		return nil, err
	}

	return &Rotator{
		settings: s,
		base:     base,
		format:   format,
		schema:   schema,
		policy:   policy,
	}, nil
}

// Files returns how many files the rotator has started
func (r *Rotator) Files() int { return r.files }

// Path returns the file currently receiving records, or "" between files
func (r *Rotator) Path() string {
	if r.current == nil {
		return ""
	}
	return r.current.Path()
}

func (r *Rotator) Append(rec telemetry.Record) error {
	if r.closed {
		return errors.New().New(ErrWriterClosed)
	}

	// A full file is closed before the next record, so a failed close
	// never reports an already accepted record as lost
	if reason := r.due(); reason != "" {
		if err := r.rotate(reason); err != nil {
			return err
		}
	}

	if r.current == nil {
		if err := r.next(); err != nil {
			return err
		}
	}

	return r.current.Append(rec)
}

// due returns why the current file is complete, or "" if it is not
func (r *Rotator) due() string {
	switch {
	case r.current == nil:
		return ""
	case r.policy.MaxRecords > 0 && r.current.Records()+r.current.Pending() >= r.policy.MaxRecords:
		return "records"
	case r.policy.MaxDuration > 0 && r.now().Sub(r.started) >= r.policy.MaxDuration:
		return "duration"
	}
	return ""
}

func (r *Rotator) next() error {
	path := r.base
	if r.policy.Enabled() {
		path = NextPath(r.base, r.format, r.mode, r.now())
	}

	w, err := open(path, r.format, r.schema, r.settings)
	if err != nil {
		return err
	}

	r.current = w
	r.started = r.now()
	r.files++

	return nil
}

func (r *Rotator) rotate(reason string) error {
	w := r.current
	r.current = nil

	if err := w.Close(); err != nil {
		return err
	}

	r.log.Info().
		Str("path", w.Path()).
		Str("reason", reason).
		Str("records", humanize.Comma(int64(w.Records()))).
		Str("size", humanize.Bytes(uint64(w.written))).
		Msg("Dataset rotated")

	return nil
}

// Close flushes and closes the current file
func (r *Rotator) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.current == nil {
		return nil
	}

	w := r.current
	r.current = nil
	if err := w.Close(); err != nil {
		return err
	}

	r.log.Info().
		Str("path", w.Path()).
		Str("records", humanize.Comma(int64(w.Records()))).
		Str("size", humanize.Bytes(uint64(w.written))).
		Msg("Dataset closed")

	return nil
}
