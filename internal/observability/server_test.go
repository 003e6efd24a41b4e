package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimatrack/estimatrack/internal/config"
)

func newTestServer(checkers ...Checker) *Server {
	cfg := &config.ObservabilityConfig{
		Port:          "0",
		Timeout:       time.Second,
		LivenessPath:  "/healthz",
		ReadinessPath: "/readyz",
		MetricsPath:   "/metrics",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(log, cfg, checkers...)
}

func probe(name string, err error) CheckerFunc {
	return CheckerFunc{
		ComponentName: name,
		Fn:            func(ctx context.Context) error { return err },
	}
}

func TestProbes(t *testing.T) {
	t.Run("Should answer liveness with a plain ok", func(t *testing.T) {
		srv := newTestServer()

		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
	})

	t.Run("Should report readiness when every dependency answers", func(t *testing.T) {
		srv := newTestServer(
			probe("postgres", nil),
			probe("redis", nil),
		)

		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rr.Code)

		var body map[string]map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "up", body["status"]["postgres"])
		assert.Equal(t, "up", body["status"]["redis"])
	})

	t.Run("Should return 503 when a single dependency is down", func(t *testing.T) {
		srv := newTestServer(
			probe("postgres", nil),
			probe("redis", errors.New("connection refused")),
		)

		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var body map[string]map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "up", body["status"]["postgres"])
		assert.Contains(t, body["status"]["redis"], "down")
	})

	t.Run("Should expose the Prometheus registry on the metrics path", func(t *testing.T) {
		srv := newTestServer()

		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "estimatrack_")
	})
}
