package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/quiz-engine/internal/cache"
	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/config"
	"github.com/SAP-F-2025/quiz-engine/internal/enrollment"
	"github.com/SAP-F-2025/quiz-engine/internal/handlers"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories/memory"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-engine/internal/scheduler"
	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
	"github.com/SAP-F-2025/quiz-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewDefaultLogger()
	if !cfg.IsProduction() {
		logger = utils.NewDevelopmentLogger()
	}

	if err := run(cfg, logger); err != nil {
		logger.LogError(err, "Quiz engine stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger := utils.ToSlogLogger(logger)
	clk := clock.New()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := pkg.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
	}

	repo, err := newRepository(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	checker, err := newEnrollmentChecker(cfg, redisClient)
	if err != nil {
		return err
	}

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	notifier := notify.NewEventNotifier(publisher, clk, slogger)
	v := validator.New()

	analyticsService := services.NewAnalyticsService(repo, clk, slogger)
	attemptService := services.NewAttemptService(repo, checker, analyticsService, notifier, clk, slogger, v)
	sched := scheduler.New(clk, repo.Quiz(), repo.Trigger(), attemptService, notifier, slogger, cfg.Scheduler.PollInterval)
	quizService := services.NewQuizService(repo, sched, notifier, clk, slogger, v)

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	} else {
		logger.Warn("Scheduler disabled, missed window edges will not be replayed")
	}

	auth, err := handlers.NewAuthMiddleware(cfg.Auth, logger)
	if err != nil {
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), utils.LoggerMiddleware(logger), utils.ContextLogger(logger))

	serviceManager := services.NewServiceManager(quizService, attemptService, analyticsService)
	handlers.NewHandlerManager(serviceManager, logger).SetupRoutes(router, auth)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Quiz engine listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newRepository uses Postgres when DATABASE_URL is set and an in-memory store
// otherwise. Quiz reads go through Redis when a client and a TTL are given.
func newRepository(cfg *config.Config, redisClient *redis.Client, logger utils.Logger) (repositories.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), nil
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.AutoMigrate(db); err != nil {
		return nil, err
	}

	repo := postgres.NewRepository(db)
	if redisClient != nil && cfg.QuizCacheTTL > 0 {
		slogger := utils.ToSlogLogger(logger)
		repo.WithQuizRepository(cache.NewCachedQuizRepository(
			repo.Quiz(),
			cache.NewRedisCache(redisClient, slogger),
			cfg.QuizCacheTTL,
			slogger,
		))
	}
	return repo, nil
}

func newEnrollmentChecker(cfg *config.Config, redisClient *redis.Client) (enrollment.Checker, error) {
	switch cfg.Enrollment.Backend {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("ENROLLMENT_BACKEND=redis requires REDIS_URL")
		}
		return enrollment.NewRedisChecker(redisClient, cfg.Enrollment.KeyPrefix), nil
	case "open", "":
		return enrollment.OpenChecker{}, nil
	default:
		return nil, fmt.Errorf("unknown enrollment backend %q", cfg.Enrollment.Backend)
	}
}
