package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viralideas/analysis-queue/internal/cache"
	"github.com/viralideas/analysis-queue/internal/config"
	httpserver "github.com/viralideas/analysis-queue/internal/http"
	"github.com/viralideas/analysis-queue/internal/http/handlers"
	"github.com/viralideas/analysis-queue/internal/queue"
	"github.com/viralideas/analysis-queue/internal/repository"
	"github.com/viralideas/analysis-queue/internal/scheduler"
	"github.com/viralideas/analysis-queue/internal/service"
	"github.com/viralideas/analysis-queue/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[viral-queue] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	summaryCache := cache.NewSummaryCache(cache.Config{
		TTL:        time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second,
		MaxEntries: cfg.SummaryCacheMaxEntries,
	})

	queueService := service.NewQueueService(repo, producer, summaryCache, logger)
	summaryService := service.NewSummaryService(repo, summaryCache)
	statsService := service.NewStatsService(repo)
	api := handlers.NewAPI(queueService, summaryService, statsService)

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		analyzer := &worker.ScriptedAnalyzer{
			StepDelay: time.Duration(cfg.AnalyzerStepMS) * time.Millisecond,
		}
		processor := worker.NewProcessor(consumer, repo, analyzer, cfg.WorkerPoolSize, logger)
		go processor.Start(ctx)
		logger.Printf("worker pool started size=%d", cfg.WorkerPoolSize)
	} else {
		logger.Printf("worker disabled by configuration")
	}

	if cfg.SchedulerEnabled {
		rerun := scheduler.NewRerunScheduler(
			repo,
			producer,
			time.Duration(cfg.RerunSweepSecs)*time.Second,
			logger,
		)
		go rerun.Start(ctx)
		logger.Printf("rerun scheduler started sweep_seconds=%d", cfg.RerunSweepSecs)
	} else {
		logger.Printf("rerun scheduler disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.QueueRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryQueueRepository(), func() {}
	}

	if err := repository.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Printf("failed to run migrations, fallback to memory: %v", err)
		return repository.NewMemoryQueueRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresQueueRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryQueueRepository(), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, 3, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: 3,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(512, 3, logger)
		return local, local, func() {}
	}

	logger.Printf("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}
