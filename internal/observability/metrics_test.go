package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/things/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	// Labels use the chi route pattern, not the concrete URL.
	count := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/things/{id}", "418"))
	assert.Equal(t, float64(1), count)
}

func TestIncDecisionCountsByOutcome(t *testing.T) {
	metrics := NewMetrics()

	metrics.IncDecision("approved")
	metrics.IncDecision("approved")
	metrics.IncDecision("denied")

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues("approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisionsTotal.WithLabelValues("denied")))
}

func TestHandlerServesRegistry(t *testing.T) {
	metrics := NewMetrics()
	metrics.IncDecision("approved")

	res := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "gatewise_permission_decisions_total")
}

func TestNilMetricsIsInert(t *testing.T) {
	var metrics *Metrics

	metrics.IncDecision("approved")

	handled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handled = true })
	metrics.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, handled)

	res := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}
