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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/checkpoint"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/database"
	"github.com/stemsi/tara/internal/handler"
	"github.com/stemsi/tara/internal/logger"
	"github.com/stemsi/tara/internal/middleware"
	"github.com/stemsi/tara/internal/repository"
	"github.com/stemsi/tara/internal/router"
	"github.com/stemsi/tara/internal/service"
	"github.com/stemsi/tara/internal/validator"
	"github.com/stemsi/tara/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.DefaultWriter = logger.GinWriter(log)
	gin.DefaultErrorWriter = gin.DefaultWriter
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Tara proctoring server")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	eventQuestionRepo := repository.NewEventQuestionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.AuthAPIURL, cfg.HTTPTimeout, log)
	submissionService := service.NewSubmissionService(cfg.ResultsAPIURL, cfg.ResultsAPIToken, cfg.HTTPTimeout, log)
	questionService, err := service.NewQuestionService(eventQuestionRepo, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load default questions")
	}
	proctorService, err := service.NewProctorService(
		cfg.Proctor,
		questionService,
		submissionService,
		service.NewResultQueue(rdb),
		service.NewViolationRecorder(rdb),
		checkpoint.NewRedisStore(rdb, cfg.Proctor.SnapshotTTL),
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid proctoring configuration")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:  handler.NewSessionHandler(proctorService, cfg.Proctor.PlatformTimeout, log, cfg.AllowedOrigins),
		Question: handler.NewQuestionHandler(questionService),
		System:   handler.NewSystemHandler(pool, rdb, proctorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	resultWorker := worker.NewResultWorker(rdb, submissionService, 5*time.Second, log)

	workers.Add(2)
	go func() { defer workers.Done(); violationWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	// 30 requests per minute per user covers reconnects and question reloads.
	limiter := middleware.NewRateLimiter(30, time.Minute)
	defer limiter.Stop()
	r := router.SetupRouter(authService, limiter, handlers, cfg, log)

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

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked session
	// sockets are not tracked by Shutdown; their snapshots stay in Redis
	// and resume on reconnect.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Int("open_sessions", proctorService.ActiveCount()).Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
