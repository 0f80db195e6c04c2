package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/api/handler"
	"github.com/use-agent/maprank/api/middleware"
	"github.com/use-agent/maprank/config"
	"github.com/use-agent/maprank/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and /metrics stay outside auth so probes and scrapers always work.
// m may be nil, in which case /metrics is not mounted.
func NewRouter(svc *handler.Service, cfg *config.Config, m *metrics.Metrics, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.Metrics(m))

	if m != nil && cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(svc, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Single lookup
	protected.POST("/rank", handler.Rank(svc))

	// Batch
	protected.POST("/batch", handler.PostBatch(svc))
	protected.POST("/batch/csv", handler.PostBatchCSV(svc))
	protected.GET("/batch/:id", handler.GetBatch(svc))
	protected.DELETE("/batch/:id", handler.CancelBatch(svc))
	protected.GET("/batch/:id/export", handler.ExportBatch(svc))
	protected.GET("/batch/:id/report", handler.BatchReport(svc))

	protected.GET("/template.csv", handler.Template())

	return r
}
