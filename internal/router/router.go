package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/handler"
	"github.com/stemsi/quizmaster-backend/internal/middleware"
	"github.com/stemsi/quizmaster-backend/internal/response"
	"github.com/stemsi/quizmaster-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Explain *handler.ExplainHandler
	Quiz    *handler.QuizHandler
	Events  *handler.EventsHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// startLimiter may be nil to disable rate limiting of POST /api/start.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	startLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.RequestLogger(log))

	// Apply brotli middleware globally. WebSocket upgrades are skipped.
	router.Use(middleware.Brotli())

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Public API ─────────────────────────────────────────────────
	api := router.Group("/api")
	{
		start := []gin.HandlerFunc{}
		if startLimiter != nil {
			start = append(start, startLimiter.Middleware())
		}
		start = append(start, handlers.Auth.Start)
		api.POST("/start", start...)

		// Authenticated endpoints of the original HTTP surface.
		api.POST("/explain", middleware.RequireJWT(authService), handlers.Explain.Explain)
		api.POST("/submit", middleware.RequireJWT(authService), handlers.Auth.Submit)
	}

	// ─── 2. Quiz Session (JWT) ─────────────────────────────────────────
	quizAPI := router.Group("/api/quiz")
	quizAPI.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		quizAPI.POST("/session", handlers.Quiz.StartSession)
		quizAPI.GET("/session", handlers.Quiz.GetSession)
		quizAPI.POST("/session/retry", handlers.Quiz.RetryFetch)
		quizAPI.POST("/session/goto", handlers.Quiz.GoTo)
		quizAPI.POST("/session/next", handlers.Quiz.Next)
		quizAPI.POST("/session/prev", handlers.Quiz.Prev)
		quizAPI.POST("/session/answer", handlers.Quiz.Answer)
		quizAPI.POST("/session/review", handlers.Quiz.ToggleReview)
		quizAPI.GET("/session/summary", handlers.Quiz.Summary)
		quizAPI.POST("/session/submit", handlers.Quiz.Submit)

		quizAPI.GET("/report", handlers.Quiz.GetReport)
		quizAPI.POST("/report/explain", handlers.Quiz.ExplainRow)
		quizAPI.GET("/report/sidebar", handlers.Quiz.GetSidebar)
		quizAPI.POST("/report/sidebar/close", handlers.Quiz.CloseSidebar)

		quizAPI.GET("/attempts", handlers.Quiz.ListAttempts)

		if handlers.Events != nil {
			quizAPI.GET("/events", handlers.Events.QuizEventsSSE)
		}
	}

	// ─── 3. WebSocket (token in query) ─────────────────────────────────
	if handlers.WS != nil {
		ws := router.Group("/ws")
		ws.Use(middleware.RequireWSAuth(authService))
		{
			ws.GET("/quiz/stream", handlers.WS.QuizStream)
		}
	}

	return router
}
