package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/casevault-api/internal/service"
)

func requestPaths(t *testing.T, metrics *service.MetricsService) map[string]float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "path" {
					out[label.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "/metrics"))
	router.PUT("/gateway/uploads/:token", func(c *gin.Context) { c.Status(http.StatusCreated) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/gateway/uploads/secret-token", "/metrics", "/nope/secret-token"} {
		method := http.MethodGet
		if target != "/metrics" && target != "/nope/secret-token" {
			method = http.MethodPut
		}
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
	}

	paths := requestPaths(t, metrics)
	assert.Equal(t, float64(1), paths["/gateway/uploads/:token"])
	assert.Equal(t, float64(1), paths[unmatchedRoute])
	assert.NotContains(t, paths, "/metrics")
	for path := range paths {
		assert.NotContains(t, path, "secret-token")
	}
}

func TestMetricsToleratesNilService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(nil))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
