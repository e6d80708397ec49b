package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/api/handler"
	"github.com/use-agent/plugscrape/api/middleware"
	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/popup"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(reg *popup.Registry, catalog *i18n.Catalog, pool handler.PoolReporter, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(pool, reg, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/locales", handler.Locales(catalog))

	sessions := protected.Group("/sessions")
	sessions.POST("", handler.CreateSession(reg))
	sessions.GET("/:id", handler.GetSession(reg))
	sessions.DELETE("/:id", handler.DeleteSession(reg))
	sessions.PUT("/:id/language", handler.SetLanguage(reg))
	sessions.POST("/:id/export", handler.Export(reg))
	sessions.GET("/:id/events", handler.Events(reg))

	return r
}
