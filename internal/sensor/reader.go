package sensor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

const defaultReadTimeout = 2 * time.Second

// Option configures a Reader
type Option func(*Reader)

// WithTimeout bounds every source read
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the capture timestamp source
func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		r.now = now
	}
}

// WithLogger sets the logger used for source failures
func WithLogger(log logger.Logger) Option {
	return func(r *Reader) {
		r.log = log
	}
}

// Reader queries all registered sources once per call
type Reader struct {
	sources []Source
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger
}

type result struct {
	values map[string]any
	err    error
}

func NewReader(sources []Source, opts ...Option) *Reader {
	r := &Reader{
		sources: sources,
		timeout: defaultReadTimeout,
		now:     time.Now,
		log:     logger.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Sources returns the registered sources in registration order
func (r *Reader) Sources() []Source {
	return r.sources
}

// Fields returns the declared fields of all sources in registration order
func (r *Reader) Fields() []telemetry.Field {
	var fields []telemetry.Field
	for _, src := range r.sources {
		fields = append(fields, src.Fields()...)
	}
	return fields
}

// Read queries every source concurrently and waits until each one has
// answered or timed out. Failed sources are reported in Failures; the
// values of the others are kept.
func (r *Reader) Read(ctx context.Context) telemetry.Reading {
	reading := telemetry.Reading{
		Timestamp: r.now(),
		Values:    make(map[string]any),
		Failures:  make(map[string]error),
	}

	results := make([]result, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i] = r.readSource(ctx, src)
		}(i, src)
	}
	wg.Wait()

	for i, src := range r.sources {
		res := results[i]
		if res.err != nil {
			reading.Failures[src.Name()] = res.err
			r.log.Debug().Code(res.err).Str("source", src.Name()).Msg("Source read failed")
			continue
		}
		for k, v := range res.values {
			if _, taken := reading.Values[k]; !taken {
				reading.Values[k] = v
			}
		}
	}

	return reading
}

func (r *Reader) readSource(ctx context.Context, src Source) result {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: errFactory.WithData(ErrSourcePanic, fmt.Sprint(p))}
			}
		}()
		values, err := src.Read(ctx)
		done <- result{values: values, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			res.err = errFactory.Wrap(ErrSensorUnavailable, res.err).
				WithMessage(fmt.Sprintf("sensor %s unavailable", src.Name()))
		}
		return res
	case <-ctx.Done():
		return result{err: errFactory.Wrap(ErrSensorUnavailable, ctx.Err()).
			WithMessage(fmt.Sprintf("sensor %s timed out after %s", src.Name(), r.timeout))}
	}
}

// Close releases sources that hold resources
func (r *Reader) Close() error {
	var firstErr error
	for _, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
