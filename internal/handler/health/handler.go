package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallbiznis/webauth/pkg/circuitbreaker"
)

// BreakerReporter exposes the state of the breaker guarding the accounts API.
type BreakerReporter interface {
	BreakerState() circuitbreaker.State
}

// Pinger is implemented by dependencies that can be pinged, such as the
// Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	accounts BreakerReporter
	pingers  map[string]Pinger
	registry *prometheus.Registry
}

func NewHandler(accounts BreakerReporter, registry *prometheus.Registry, pingers map[string]Pinger) *Handler {
	return &Handler{
		accounts: accounts,
		pingers:  pingers,
		registry: registry,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
	r.GET("/metrics", h.Metrics())
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// ReadinessCheck reports DOWN while the accounts breaker is open or a pinged
// dependency fails.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	checks := gin.H{}
	up := true

	state := h.accounts.BreakerState()
	checks["accounts"] = state.String()
	if state == circuitbreaker.StateOpen {
		up = false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			up = false
			continue
		}
		checks[name] = "UP"
	}

	if !up {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "checks": checks})
}

func (h *Handler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
}
