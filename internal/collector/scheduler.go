package collector

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"codeberg.org/mutker/devtelemetry/internal/metrics"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

// Option configures a Scheduler
type Option func(*Scheduler)

func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithMetrics reports tick, failure and state counters to m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler drives the sample-normalize-append loop. Ticks never overlap;
// the next interval starts when the previous tick has finished.
type Scheduler struct {
	cfg     Config
	reader  Reader
	schema  *telemetry.Schema
	sink    Sink
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	stats  Stats
	reason StopReason
}

func New(cfg Config, reader Reader, schema *telemetry.Schema, sink Sink, opts ...Option) (*Scheduler, error) {
	errFactory := errors.New()

	switch {
	case cfg.Interval <= 0:
		return nil, errFactory.WithData(ErrInvalidConfig, struct {
			Field    string
			Interval string
		}{"interval", cfg.Interval.String()})
	case cfg.MaxTicks < 0 || cfg.RunDuration < 0:
		return nil, errFactory.WithMessage(ErrInvalidConfig, "stop conditions must not be negative")
	case reader == nil || sink == nil || schema == nil:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "reader, schema and sink are required")
	}

	s := &Scheduler{
		cfg:    cfg,
		reader: reader,
		schema: schema,
		sink:   sink,
		log:    logger.Nop(),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetState(int(st))
	s.log.Debug().Str("state", st.String()).Msg("Scheduler state changed")
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reason returns why collection ended, empty while running
func (s *Scheduler) Reason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stop requests a graceful stop. An in-flight tick completes first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run collects until ctx is done, Stop is called, a stop condition is met
// or the sink fails. It blocks for the whole collection and may be called
// once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.New().WithData(ErrInvalidOperation, struct {
			Operation string
			State     string
		}{"run", s.State().String()})
	}
	s.setState(StateRunning)

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_ticks", s.cfg.MaxTicks).
		Dur("run_duration", s.cfg.RunDuration).
		Int("fields", s.schema.Len()).
		Msg("Collection started")

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	var deadline <-chan time.Time
	if s.cfg.RunDuration > 0 {
		d := time.NewTimer(s.cfg.RunDuration)
		defer d.Stop()
		deadline = d.C
	}

	// Ticks finish even when ctx is canceled mid-tick
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(ReasonCanceled, nil)
		case <-s.stop:
			return s.shutdown(ReasonStopped, nil)
		case <-deadline:
			return s.shutdown(ReasonRunDuration, nil)
		case <-timer.C:
		}

		if err := s.tick(tickCtx); err != nil {
			return s.shutdown(ReasonWriterFailure, err)
		}

		if s.cfg.MaxTicks > 0 && s.Stats().Ticks >= s.cfg.MaxTicks {
			return s.shutdown(ReasonMaxTicks, nil)
		}

		timer.Reset(s.cfg.Interval)
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	start := s.now()

	reading := s.reader.Read(ctx)

	sources := make([]string, 0, len(reading.Failures))
	for name := range reading.Failures {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	for _, name := range sources {
		s.log.Warn().
			Code(reading.Failures[name]).
			Str("source", name).
			Msg("Sensor unavailable, fields recorded as missing")
		s.metrics.SensorFailure(name)
	}

	rec, diags := telemetry.Normalize(reading, s.schema)
	for _, d := range diags {
		s.log.Warn().
			Code(d.Err()).
			Str("field", d.Field).
			Msg("Malformed field recorded as missing")
		s.metrics.MalformedField(d.Field)
	}

	s.mu.Lock()
	s.stats.Ticks++
	s.stats.LastTick = reading.Timestamp
	s.stats.PartialFailures += len(sources)
	s.stats.MalformedFields += len(diags)
	s.mu.Unlock()

	if err := s.sink.Append(rec); err != nil {
		s.metrics.WriteFailure()
		if !errors.IsFatal(err) {
			err = errors.New().Wrap(ErrWriterIO, err)
		}
		return err
	}

	s.mu.Lock()
	s.stats.Records++
	s.mu.Unlock()

	elapsed := s.now().Sub(start)
	s.metrics.RecordWritten()
	s.metrics.Tick(elapsed)

	level, ok := rec.BatteryLevel()
	s.log.Debug().
		Time("timestamp", rec.Timestamp()).
		Bool("battery_present", ok).
		Float64("battery_level", level).
		Int("failures", len(sources)).
		Dur("elapsed", elapsed).
		Msg("Tick recorded")

	return nil
}

// shutdown closes the sink exactly once. A close failure is fatal unless
// an earlier error already is.
func (s *Scheduler) shutdown(reason StopReason, cause error) error {
	s.setState(StateStopping)

	s.mu.Lock()
	s.reason = reason
	stats := s.stats
	s.mu.Unlock()

	closeErr := s.sink.Close()
	if closeErr != nil && !errors.IsFatal(closeErr) {
		closeErr = errors.New().Wrap(ErrWriterIO, closeErr)
	}

	s.setState(StateStopped)

	err := cause
	if err == nil {
		err = closeErr
	}

	if err != nil {
		s.log.Error().
			Code(err).
			Str("reason", string(reason)).
			Int("ticks", stats.Ticks).
			Int("records", stats.Records).
			Msg("Collection stopped on fatal error")
		return err
	}

	s.log.Info().
		Str("reason", string(reason)).
		Int("ticks", stats.Ticks).
		Int("records", stats.Records).
		Int("partial_failures", stats.PartialFailures).
		Int("malformed_fields", stats.MalformedFields).
		Msg("Collection stopped")

	return nil
}
