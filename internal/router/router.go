package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/handler"
	"github.com/stemsi/tara/internal/middleware"
	"github.com/stemsi/tara/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session  *handler.SessionHandler
	Question *handler.QuestionHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.LoginChecker,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	router.Use(cors.New(corsConfig(cfg, log)))

	// Request IDs and the access log replace gin's default logger.
	router.Use(response.RequestIDMiddleware(log))

	// Apply brotli middleware globally. WebSocket upgrades pass through.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// ─── 1. Test API (Cookie Auth) ─────────────────────────────────────
	testAPI := router.Group("/api/v1/tests")
	testAPI.Use(middleware.RequireLogin(auth), limiter.Middleware(), middleware.CacheControl(0))
	{
		testAPI.GET("/:mode/questions", handlers.Question.ListQuestions)
	}

	// ─── 2. WebSocket Group (Cookie Auth) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLogin(auth), limiter.Middleware())
	{
		ws.GET("/tests/:mode/session", handlers.Session.TestSession)
	}

	// ─── 3. System ─────────────────────────────────────────────────────
	systemAPI := router.Group("/api/v1/system")
	systemAPI.Use(middleware.RequireLogin(auth), middleware.RequireUser(cfg.MetricsUserIDs))
	{
		systemAPI.GET("/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}

// corsConfig restricts cross-origin requests to AllowedOrigins. Without a
// list every origin is reflected in debug and test mode so dev works without
// extra config; release mode then admits no cross-origin caller at all.
// Credentials are needed because auth rides on the session cookie, which
// rules out the wildcard origin.
func corsConfig(cfg *config.Config, log zerolog.Logger) cors.Config {
	c := cors.DefaultConfig()
	switch {
	case len(cfg.AllowedOrigins) > 0:
		c.AllowOrigins = cfg.AllowedOrigins
	case cfg.GinMode == gin.ReleaseMode:
		log.Warn().Msg("ALLOWED_ORIGINS is empty, cross-origin requests are refused")
		c.AllowOriginFunc = func(string) bool { return false }
	default:
		log.Warn().Str("gin_mode", cfg.GinMode).Msg("ALLOWED_ORIGINS is empty, every origin is allowed with credentials")
		c.AllowOriginFunc = func(string) bool { return true }
	}
	c.AllowCredentials = true
	c.AllowMethods = []string{"GET", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	c.ExposeHeaders = []string{"X-Request-ID"}
	c.MaxAge = 12 * time.Hour
	return c
}
