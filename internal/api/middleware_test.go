package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Comparador/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsWithinBurst(t *testing.T) {
	handler := RateLimitMiddleware(1, 5)(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:5000"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
}

func TestRateLimitMiddleware_BlocksOverBurst(t *testing.T) {
	handler := RateLimitMiddleware(0.001, 3)(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:5000"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitMiddleware_KeysByClientAddress(t *testing.T) {
	handler := RateLimitMiddleware(0.001, 2)(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:5000"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, w.Code, "second client should not be limited")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitMiddleware_ZeroRateDisables(t *testing.T) {
	handler := RateLimitMiddleware(0, 0)(okHandler())
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:5000"))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequestLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	called := false
	handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.True(t, called, "inner handler was not called")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(RequestLogger(logger, metrics.New(reg)))
	r.Get("/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/projects/abc", nil))

	families, err := reg.Gather()
	require.NoError(t, err)

	var route string
	for _, f := range families {
		if f.GetName() != "comparador_http_requests_total" {
			continue
		}
		for _, l := range f.GetMetric()[0].GetLabel() {
			if l.GetName() == "route" {
				route = l.GetValue()
			}
		}
	}
	assert.Equal(t, "/projects/{id}", route)
}
