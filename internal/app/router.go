package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/config"
	httpx "github.com/yungbote/loresmith/internal/http"
	"github.com/yungbote/loresmith/internal/observability"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg *config.Config, handlers Handlers, metrics *observability.Metrics) httpx.RouterConfig {
	log.Info("Wiring router...")
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httpx.RouterConfig{
		Log:            log,
		ServiceName:    "loresmith",
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxRequestBytes,
		Metrics:        metrics,
		SessionHandler: handlers.Session,
		JobHandler:     handlers.Job,
		WorldHandler:   handlers.World,
		HealthHandler:  handlers.Health,
	}
}
