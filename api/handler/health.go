package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Status degrades while every slot is taken, whether by a batch or by a
// synchronous lookup.
func Health(s *Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := s.BusySlots()

		status := "healthy"
		if active >= s.MaxConcurrent {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Driver:     s.Driver,
			ActiveJobs: active,
			MaxJobs:    s.MaxConcurrent,
			Version:    Version,
		})
	}
}
