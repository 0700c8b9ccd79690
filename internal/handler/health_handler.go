package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/casevault-api/internal/service"
)

const defaultReadinessTimeout = 2 * time.Second

// ReadinessCheck probes one dependency. A failing critical check makes the
// instance unready; a failing optional one only degrades it.
type ReadinessCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and the Prometheus scrape endpoint.
type HealthHandler struct {
	metrics *service.MetricsService
	checks  []ReadinessCheck
	timeout time.Duration
	now     func() time.Time
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(metrics *service.MetricsService, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		metrics: metrics,
		checks:  checks,
		timeout: defaultReadinessTimeout,
		now:     time.Now,
	}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *HealthHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports that the process is alive. It never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC().Format(time.RFC3339)})
}

// Ready runs every readiness check and answers 503 when a critical one fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	overall := "ok"
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			if check.Critical {
				overall = "fail"
				status = http.StatusServiceUnavailable
			} else if overall == "ok" {
				overall = "degraded"
			}
			continue
		}
		results[check.Name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"checks":    results,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
