package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("estimates:expire").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("estimates:expire").End(boom), boom)
	m.AddAffected("estimates:expire", 3)
	m.AddAffected("estimates:expire", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("estimates:expire", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("estimates:expire", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.affected.WithLabelValues("estimates:expire")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.AddAffected("x", 5)
}
