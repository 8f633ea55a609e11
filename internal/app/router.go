package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/reflect-journal/backend/internal/middleware"
	"github.com/reflect-journal/backend/internal/questions"
	"github.com/reflect-journal/backend/pkg/ratelimit"
	"github.com/reflect-journal/backend/pkg/response"
)

// Router builds the HTTP routes over a's service. GenerateNew is rate
// limited per user when Redis is available and a limit is configured.
func (a *App) Router() *gin.Engine {
	var limiter middleware.Limiter
	if a.Redis != nil && a.Config.Journal.GenerateLimitPerHour > 0 {
		limiter = ratelimit.NewWindow(a.Redis, a.Config.Journal.GenerateLimitPerHour, time.Hour)
	}
	return NewRouter(RouterConfig{
		ServiceName:        a.Config.Telemetry.ServiceName,
		CORSAllowedOrigins: a.Config.Server.CORSAllowedOrigins,
		GenerateLimiter:    limiter,
	}, questions.NewHandler(a.Service, a.Logger), a.Logger)
}

// RouterConfig holds the request-surface options.
type RouterConfig struct {
	ServiceName        string
	CORSAllowedOrigins string
	// GenerateLimiter caps POST /generate-new per user; nil disables it.
	GenerateLimiter middleware.Limiter
}

// NewRouter registers the journal routes on a new gin engine.
func NewRouter(cfg RouterConfig, h *questions.Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Journal (User-ID header required)
	api := router.Group("")
	api.Use(middleware.Identity())
	{
		api.GET("/latest-unanswered", h.LatestUnanswered)
		api.GET("/latest-answer", h.LatestAnswer)
		api.GET("/answers", h.Answers)
		api.POST("/add-answer", h.AddAnswer)

		generate := []gin.HandlerFunc{h.GenerateNew}
		if cfg.GenerateLimiter != nil {
			generate = append([]gin.HandlerFunc{middleware.RateLimit(cfg.GenerateLimiter, "generate", logger)}, generate...)
		}
		api.POST("/generate-new", generate...)
	}
	return router
}
