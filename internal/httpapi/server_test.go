package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klntsky/compression-bench/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDB struct {
	status *store.HealthStatus
	err    error
}

func (f *fakeDB) Health(ctx context.Context) (*store.HealthStatus, error) {
	return f.status, f.err
}

func TestHealthHandler_HealthyWhenDBReachableAndNoRunner(t *testing.T) {
	s := New(&fakeDB{status: &store.HealthStatus{Status: "healthy"}}, nil, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHealthHandler_UnhealthyWhenDBUnreachable(t *testing.T) {
	s := New(&fakeDB{err: assertError{}}, nil, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":{"status":"unhealthy"`)
}

func TestMetricsHandler_ExposesRegisteredMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "example_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(nil, nil, reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "example_total 1")
}

type assertError struct{}

func (assertError) Error() string { return "connection refused" }
