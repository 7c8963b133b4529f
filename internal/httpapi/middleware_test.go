// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	router := NewRouter(&fakeProcessor{}, Options{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	family := findFamily(t, "analysis_worker_http_request_duration_seconds")
	require.NotNil(t, family)

	found := false
	for _, m := range family.GetMetric() {
		var path, status string
		for _, l := range m.GetLabel() {
			switch l.GetName() {
			case "path":
				path = l.GetValue()
			case "status":
				status = l.GetValue()
			}
		}
		if path == "/healthz" && status == "200" {
			found = true
			assert.Positive(t, m.GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "no sample recorded for GET /healthz")
}

func TestRateLimitMiddleware(t *testing.T) {
	router := NewRouter(&fakeProcessor{}, Options{RateLimitRPM: 2})

	var last int
	for range 5 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
