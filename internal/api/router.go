package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/rolewarden/internal/middleware"
	"github.com/charlesng35/rolewarden/internal/monitoring"
	"github.com/charlesng35/rolewarden/pkg/response"
)

// NewRouter builds the liveness surface consumed by uptime supervisors. It
// never touches the pending-grant store beyond the registered health probes.
func NewRouter(mon *monitoring.Module, metricsEnabled bool, metricsEndpoint string) (*gin.Engine, error) {
	if mon == nil {
		return nil, fmt.Errorf("monitoring module must be provided")
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())

	r.GET("/", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/health", func(c *gin.Context) {
		report := mon.Health().Evaluate(c.Request.Context())
		if report.Success {
			response.Success(c, http.StatusOK, report)
			return
		}
		c.JSON(http.StatusServiceUnavailable, response.Response{Success: false, Data: report})
	})

	if metricsEnabled {
		if metricsEndpoint == "" {
			metricsEndpoint = "/metrics"
		}
		r.GET(metricsEndpoint, gin.WrapH(mon.Handler()))
	}

	return r, nil
}
