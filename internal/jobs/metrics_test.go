package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("stock:integrity").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, m.runs.WithLabelValues("stock:integrity", "success")))
	require.Equal(t, 1.0, counterValue(t, m.runs.WithLabelValues("stock:integrity", "failure")))
	require.Equal(t, 1.0, counterValue(t, m.failures.WithLabelValues("stock:integrity")))
}

func TestAddFindings(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddFindings("drift", 3)
	m.AddFindings("drift", 0)
	require.Equal(t, 3.0, counterValue(t, m.findings.WithLabelValues("drift")))

	var nilMetrics *Metrics
	nilMetrics.AddFindings("drift", 1)
	require.NoError(t, nilMetrics.Track("noop").End(nil))
}
