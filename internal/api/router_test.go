package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/rolewarden/internal/monitoring"
)

func newTestModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mon, err := monitoring.NewModule(monitoring.Options{
		DisableGoCollector:      true,
		DisableProcessCollector: true,
	})
	require.NoError(t, err)
	return mon
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestRouterRequiresModule(t *testing.T) {
	_, err := NewRouter(nil, false, "")
	require.Error(t, err)
}

func TestRootEndpoint(t *testing.T) {
	router, err := NewRouter(newTestModule(t), false, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealthEndpointHealthy(t *testing.T) {
	mon := newTestModule(t)
	mon.Health().Register(monitoring.NewCheck("store", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	router, err := NewRouter(mon, false, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"up"`)
}

func TestHealthEndpointFailingProbe(t *testing.T) {
	mon := newTestModule(t)
	mon.Health().Register(monitoring.NewCheck("store", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	router, err := NewRouter(mon, false, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
	require.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	mon := newTestModule(t)
	mon.Metrics().SetPendingGrants(3)

	router, err := NewRouter(mon, true, "/metrics")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "rolewarden_pending_grants 3")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	router, err := NewRouter(newTestModule(t), false, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
