package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_DefaultNamespace(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	m.RecordEvaluation("net-http-transport", "transformed")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "avaegress_engine_evaluations_total" {
			found = true
			assert.Equal(t, dto.MetricType_COUNTER, f.GetType())
		}
	}
	assert.True(t, found)
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")

	m.RecordEvaluation("fasthttp-client", "transformed")
	m.RecordEvaluation("fasthttp-client", "transformed")
	m.RecordEvaluation("fasthttp-client", "failed")
	m.RecordStrategyInvocation("fasthttp-client", "ReplaceFieldBeforeCall")
	m.RecordPayloadUpdate("activeProxySelector")
	m.SetRules(6, 1)
	m.RecordBreakerTransition("closed", "open")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.evaluationsTotal.WithLabelValues("fasthttp-client", "transformed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.evaluationsTotal.WithLabelValues("fasthttp-client", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.strategyInvocations.WithLabelValues("fasthttp-client", "ReplaceFieldBeforeCall")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.payloadUpdates.WithLabelValues("activeProxySelector")))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.rules.WithLabelValues("active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rules.WithLabelValues("disabled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.breakerTransitions.WithLabelValues("closed", "open")))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.SetBuildInfo("1.0.0", "abc123", "2026-01-01")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_build_info{build_time="2026-01-01",commit="abc123",version="1.0.0"} 1`)
}

func TestMetrics_RegisterCollector(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "extra"})

	require.NoError(t, m.RegisterCollector(c))
	assert.Error(t, m.RegisterCollector(c))
}
