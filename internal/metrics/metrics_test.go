package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Tick(20 * time.Millisecond)
	m.Tick(30 * time.Millisecond)
	m.SensorFailure("battery")
	m.MalformedField("cpu_percent")
	m.MalformedField("cpu_percent")
	m.RecordWritten()
	m.WriteFailure()
	m.SetState(1)
	m.FileOpened(dataset.FileInfo{Appended: true})
	m.FileClosed(dataset.FileStats{Bytes: 512})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sensorFailures.WithLabelValues("battery")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.malformedFields.WithLabelValues("cpu_percent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesOpened.WithLabelValues("true")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.bytesWritten))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Tick(time.Second)
		m.SensorFailure("gpu")
		m.MalformedField("x")
		m.RecordWritten()
		m.WriteFailure()
		m.SetState(3)
		m.FileOpened(dataset.FileInfo{})
		m.FileClosed(dataset.FileStats{})
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.Tick(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "devtelemetry_ticks_total 1")
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Serve(ctx, "127.0.0.1:0", logger.Nop())
	assert.NoError(t, err)
}
