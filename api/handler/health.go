package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/popup"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// PoolReporter exposes browser pool statistics; *scraper.Scraper implements it.
type PoolReporter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health. Status degrades when more
// than 80% of the browser pages are in use.
func Health(pool PoolReporter, reg *popup.Registry, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := pool.Stats()

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Sessions:  reg.Len(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
