package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/bulletinboard/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMetrics(t *testing.T) {
	metricsManager, reg := metrics.NewTestManagerAndRegistry()

	router := mux.NewRouter()
	router.Use(RequestMetrics(metricsManager))
	router.HandleFunc("/bulletins", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET").Name("bulletins")
	router.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no can do", http.StatusUnauthorized)
	}).Methods("POST").Name("upload")

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest("GET", "/bulletins", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/upload", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("POST", "401")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metricsManager.GaugeRequests))

	count, err := testutil.GatherAndCount(reg, "bulletins_test_server_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
