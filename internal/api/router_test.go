package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/api/handlers"
	"github.com/stitts-dev/nba-projections/internal/api/middleware"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewManager(metrics.WithNamespace("test"))
	log := logger.NewDiscardLogger()
	router := NewRouter(Dependencies{
		Health:  handlers.NewHealthHandler(nil, nil, nil, nil, nil, log),
		Metrics: m,
		Logger:  log,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rankings", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "routes without a handler are not registered")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_projections_http_requests_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "test_projections_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)
}
