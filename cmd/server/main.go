package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizmaster-backend/internal/ai"
	"github.com/stemsi/quizmaster-backend/internal/config"
	"github.com/stemsi/quizmaster-backend/internal/database"
	"github.com/stemsi/quizmaster-backend/internal/handler"
	"github.com/stemsi/quizmaster-backend/internal/logger"
	"github.com/stemsi/quizmaster-backend/internal/middleware"
	"github.com/stemsi/quizmaster-backend/internal/repository"
	"github.com/stemsi/quizmaster-backend/internal/router"
	"github.com/stemsi/quizmaster-backend/internal/service"
	"github.com/stemsi/quizmaster-backend/internal/trivia"
	"github.com/stemsi/quizmaster-backend/internal/validator"
	"github.com/stemsi/quizmaster-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting QuizMaster Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to Gemini ─────────────────────────────────────────────
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty; explanations will fail")
	}
	gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	defer gemini.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Workers ────────────────────────────────────────────
	completionWorker := worker.NewCompletionWorker(attemptRepo, rdb, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	explainService := service.NewExplainService(cfg, gemini, rdb, log)
	triviaClient := trivia.NewClient(cfg.TriviaURL, trivia.Options{
		Retries:  cfg.TriviaRetries,
		Interval: cfg.TriviaBackoff,
	}, log)
	quizService := service.NewQuizService(cfg, rdb, triviaClient, explainService, service.QuizServiceOptions{
		Recorder: completionWorker,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, quizService, log),
		Explain: handler.NewExplainHandler(explainService, log),
		Quiz:    handler.NewQuizHandler(quizService, attemptRepo, log),
		Events:  handler.NewEventsHandler(rdb, quizService, log),
		WS:      handler.NewWSHandler(rdb, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	startLimiter := middleware.NewRateLimiter(cfg.StartPerMinute, time.Minute)
	reaper := worker.NewSessionReaper(quizService, cfg.SessionIdle, cfg.ReapInterval, log)

	workers.Add(3)
	go func() { defer workers.Done(); startLimiter.Run(workerCtx) }()
	go func() { defer workers.Done(); reaper.Start(workerCtx) }()
	go func() { defer workers.Done(); completionWorker.Start(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, startLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Pause every countdown and flush session state to Redis. Sessions
	// that finalize here still reach the completion queue.
	quizService.Shutdown()

	// 3. Stop background workers; the completion worker drains its queue.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
