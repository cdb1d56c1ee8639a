package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/handler"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/middleware"
	"github.com/stemsi/cbt-backend/internal/remote"
	"github.com/stemsi/cbt-backend/internal/router"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/store"
	"github.com/stemsi/cbt-backend/internal/validator"
	"github.com/stemsi/cbt-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CBT Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Login sessions live in Redis whichever store is selected.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Select Data Store ─────────────────────────────────────────────
	var (
		dataStore store.DataStore
		pool      *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreDriverRemote:
		if cfg.RemoteStoreURL == "" {
			log.Fatal().Msg("REMOTE_STORE_URL is required with STORE_DRIVER=remote")
		}
		dataStore = remote.New(cfg.RemoteStoreURL, cfg.RemoteTimeout, cfg.BcryptCost, log)
	case config.StoreDriverPostgres:
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		dataStore = store.NewPostgresStore(pool, rdb, log)
	default:
		log.Fatal().Str("store", cfg.StoreDriver).Msg("Unknown STORE_DRIVER")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	catalog := service.NewCatalogService(dataStore, log)
	tokenService := service.NewTokenService(dataStore, catalog, log)
	monitorService := service.NewMonitorService(dataStore, catalog, log)
	questionService := service.NewQuestionService(dataStore, catalog)
	resultService := service.NewResultService(dataStore, catalog)
	examSessions := service.NewExamSessionService(dataStore, catalog, authService, service.OptionsFromConfig(cfg), log)

	// ─── Load Snapshot ────────────────────────────────────────────────
	// Load school data, roster and question bank BEFORE accepting traffic.
	// A failed load leaves an empty catalog; admins can retry via refresh.
	_ = catalog.Refresh(ctx)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, catalog, examSessions, log),
		StudentPortal: handler.NewStudentPortalHandler(examSessions, catalog, log),
		StudentMgmt:   handler.NewStudentManagementHandler(catalog, authService, examSessions, log),
		Exam:          handler.NewExamHandler(tokenService, monitorService, catalog, log),
		Question:      handler.NewQuestionHandler(questionService, resultService, log),
		WS:            handler.NewWSHandler(examSessions, log, cfg.AllowedOrigins),
		Monitor:       handler.NewMonitorHandler(monitorService, cfg.MonitorInterval, log),
		System:        handler.NewSystemHandler(rdb, catalog, examSessions, cfg.StoreDriver, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	if pool != nil {
		startWorkers(workerCtx, &workers, pool, rdb, log)
	}

	// Rate limiter for login routes (30 requests per minute per IP).
	loginLimiter := middleware.NewRateLimiter(30, time.Minute)
	go loginLimiter.Run(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, catalog, loginLimiter, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// 2. Stop exam sessions so their last status and result writes are queued.
	examSessions.Shutdown()

	// 3. Stop background workers and wait for them to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

func startWorkers(ctx context.Context, wg *sync.WaitGroup, pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) {
	starters := []func(context.Context){
		worker.NewStatusWorker(pool, rdb, log).Start,
		worker.NewResultWorker(pool, rdb, log).Start,
		worker.NewDrawWorker(pool, rdb, log).Start,
	}
	for _, start := range starters {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(start)
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
