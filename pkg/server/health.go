package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrCodeEU/attendface/pkg/logging"
)

// HealthCheck is one component probed by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	components := make([]componentStatus, 0, len(s.services.Health))
	for _, h := range s.services.Health {
		status := "ok"
		if err := h.Check(ctx); err != nil {
			status = "error"
			healthy = false
			logging.Component("health").WithField("check", h.Name).WithError(err).Error("Health check failed")
		}
		components = append(components, componentStatus{Name: h.Name, Status: status})
	}

	code, overall := http.StatusOK, "ok"
	if !healthy {
		code, overall = http.StatusServiceUnavailable, "error"
	}
	c.JSON(code, gin.H{
		"overall_status": overall,
		"components":     components,
	})
}
