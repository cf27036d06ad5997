package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.RequestDispatched("/events")
	m.RequestDispatched("/events")
	m.RequestCompleted("ok")
	m.SetPending(3)
	m.BucketMaterialized()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("/events")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completed.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.materialized))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RequestDispatched("/events")
	m.RequestCompleted("failed")
	m.SetPending(1)
	m.BucketMaterialized()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RequestDispatched("/schedules")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `calclient_requests_dispatched_total{path="/schedules"} 1`))
}
