package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		statusCode int
		wantLabel  string
	}{
		{
			name:       "labels by pattern, not by id",
			method:     http.MethodGet,
			path:       "/api/v1/invoices/01HXYZ/balance",
			statusCode: http.StatusTeapot,
			wantLabel:  "/api/v1/invoices/{id}/balance",
		},
		{
			name:       "static route",
			method:     http.MethodPost,
			path:       "/health",
			statusCode: http.StatusCreated,
			wantLabel:  "/health",
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/nope/123",
			statusCode: http.StatusNotFound,
			wantLabel:  unmatchedRoute,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewWithRegisterer(prometheus.NewRegistry())

			r := chi.NewRouter()
			r.Use(Metrics(m))
			reply := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(tc.statusCode) }
			r.Get("/api/v1/invoices/{id}/balance", reply)
			r.Post("/health", reply)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			counter := m.HTTPRequests.WithLabelValues(tc.method, tc.wantLabel, strconv.Itoa(tc.statusCode))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected counter for %s to be 1, got %v", tc.wantLabel, got)
			}
		})
	}
}
