package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/loresmith/internal/http/handlers"
	httpMW "github.com/yungbote/loresmith/internal/http/middleware"
	"github.com/yungbote/loresmith/internal/observability"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Metrics        *observability.Metrics

	SessionHandler *httpH.SessionHandler
	JobHandler     *httpH.JobHandler
	WorldHandler   *httpH.WorldHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "loresmith"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext(cfg.MaxBodyBytes))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Sessions (creation pipeline)
		if cfg.SessionHandler != nil {
			api.GET("/sessions", cfg.SessionHandler.List)
			api.POST("/sessions", cfg.SessionHandler.Create)
			api.GET("/sessions/:id", cfg.SessionHandler.Get)
			api.POST("/sessions/:id/enter", cfg.SessionHandler.Enter)
			api.POST("/sessions/:id/select", cfg.SessionHandler.Select)
			api.POST("/sessions/:id/regenerate", cfg.SessionHandler.Regenerate)
			api.POST("/sessions/:id/advance", cfg.SessionHandler.Advance)
			api.POST("/sessions/:id/retry", cfg.SessionHandler.Retry)
			api.POST("/sessions/:id/finalize/retry", cfg.SessionHandler.RetryFinalize)
			api.DELETE("/sessions/:id", cfg.SessionHandler.Delete)
		}

		// Jobs
		if cfg.JobHandler != nil {
			api.POST("/jobs", cfg.JobHandler.Submit)
			api.GET("/jobs/:id", cfg.JobHandler.Get)
			api.GET("/jobs/:id/stream", cfg.JobHandler.Stream)
		}

		// Worlds
		if cfg.WorldHandler != nil {
			api.POST("/worlds/:id/image", cfg.WorldHandler.GenerateImage)
			api.GET("/worlds/:id/image", cfg.WorldHandler.ImageStatus)
		}
	}

	return r
}
