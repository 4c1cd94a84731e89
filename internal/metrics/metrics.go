package metrics

import (
	"net/http"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devtelemetry"

// Metrics holds the collection counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	tickDuration    prometheus.Histogram
	sensorFailures  *prometheus.CounterVec
	malformedFields *prometheus.CounterVec
	recordsWritten  prometheus.Counter
	writeFailures   prometheus.Counter
	filesOpened     *prometheus.CounterVec
	bytesWritten    prometheus.Counter
	state           prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total collection ticks completed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Histogram of time spent reading, normalizing and writing one record.",
			Buckets:   prometheus.DefBuckets,
		}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_failures_total",
			Help:      "Total sensor reads that failed or timed out, by source.",
		}, []string{"source"}),
		malformedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_fields_total",
			Help:      "Total values replaced by the no-data marker, by field.",
		}, []string{"field"}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total records accepted by the dataset writer.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Total dataset writes that failed.",
		}),
		filesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_files_opened_total",
			Help:      "Total dataset files opened, by whether an existing file was resumed.",
		}, []string{"appended"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_bytes_written_total",
			Help:      "Total bytes written to closed dataset files.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "Scheduler state (0 idle, 1 running, 2 stopping, 3 stopped).",
		}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.sensorFailures,
		m.malformedFields,
		m.recordsWritten,
		m.writeFailures,
		m.filesOpened,
		m.bytesWritten,
		m.state,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick(duration time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(duration.Seconds())
}

func (m *Metrics) SensorFailure(source string) {
	if m == nil {
		return
	}
	m.sensorFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) MalformedField(field string) {
	if m == nil {
		return
	}
	m.malformedFields.WithLabelValues(field).Inc()
}

func (m *Metrics) RecordWritten() {
	if m == nil {
		return
	}
	m.recordsWritten.Inc()
}

func (m *Metrics) WriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Metrics) FileOpened(info dataset.FileInfo) {
	if m == nil {
		return
	}
	appended := "false"
	if info.Appended {
		appended = "true"
	}
	m.filesOpened.WithLabelValues(appended).Inc()
}

func (m *Metrics) FileClosed(stats dataset.FileStats) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(stats.Bytes))
}
