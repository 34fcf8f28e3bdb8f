package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://randommer.io/api/Card", "randommer.io"},
		{"mixed case", "https://RandomUser.me/api/", "randomuser.me"},
		{"no scheme", "zenquotes.io/api/random", "zenquotes.io"},
		{"host with port", "localhost:3000", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveRunAndFetch(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("delivered"))
	ObserveRun("delivered")
	require.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("delivered")))

	beforeFetch := testutil.ToFloat64(sourceFetchTotal.WithLabelValues("iban", "success"))
	ObserveSourceFetch("iban", "success", 20*time.Millisecond)
	require.Equal(t, beforeFetch+1, testutil.ToFloat64(sourceFetchTotal.WithLabelValues("iban", "success")))

	beforeDelivery := testutil.ToFloat64(deliveryTotal.WithLabelValues("502"))
	ObserveDelivery(http.StatusBadGateway)
	require.Equal(t, beforeDelivery+1, testutil.ToFloat64(deliveryTotal.WithLabelValues("502")))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/{run_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")))
}
