package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"truemarket-api/internal/cache"
	"truemarket-api/internal/clock"
	"truemarket-api/internal/config"
	"truemarket-api/internal/handler"
	"truemarket-api/internal/middleware"
	"truemarket-api/internal/repository"
	"truemarket-api/internal/router"
	"truemarket-api/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting TrueMarket API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize backing store based on config
	var store repository.Store
	var err error
	switch cfg.Database.Type {
	case "postgres", "postgresql":
		store, err = repository.NewPostgresStore(cfg.Database.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		log.Println("PostgreSQL store initialized")
	case "mysql":
		store, err = repository.NewMySQLStore(cfg.Database.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		log.Println("MySQL store initialized")
	default: // sqlite
		store, err = repository.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		log.Println("SQLite store initialized")
	}
	defer store.Close()

	// Initialize cache for the profitable skin scan
	var resultCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		resultCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, falling back to memory cache: %v", err)
			resultCache = cache.NewMemoryCache()
		} else {
			log.Println("Redis cache initialized")
		}
	default:
		resultCache = cache.NewMemoryCache()
	}
	defer resultCache.Close()

	// Initialize services
	clk := clock.SystemClock{}

	rateFeed := service.NewExchangeRateAPI(cfg.Exchange.BaseURL, cfg.Exchange.Timeout)
	converter := service.NewCurrencyConverter(rateFeed, clk, cfg.Exchange.CacheTTL)

	taskService := service.NewTaskService(store.Tasks(), store.PriceHistories(), converter, clk, service.TaskConfig{
		HistoryExpiration:  cfg.Pricing.HistoryExpiration,
		CompletedRetention: cfg.Cleanup.TaskRetention,
	})

	ingestService := service.NewIngestService(
		store.Skins(), store.Conversions(), converter, taskService, clk, cfg.Exchange.RetryInitialDelay)

	retryService := service.NewRetryService(store.Conversions(), ingestService, clk, service.RetryConfig{
		InitialDelay: cfg.Exchange.RetryInitialDelay,
		MaxAttempts:  cfg.Exchange.RetryMaxAttempts,
	})

	reaperService := service.NewReaperService(store.Skins(), clk, cfg.Cleanup.SkinStaleAfter)

	profitableService := service.NewProfitableService(
		store.Skins(), store.PriceHistories(), service.NewProfitCalculator(), resultCache, cfg.Cache.TTL)

	// Background sweeps
	retrySweeper := service.NewSweeper("conversion-retry", cfg.Exchange.RetryInterval, func(ctx context.Context) error {
		_, err := retryService.RunOnce(ctx)
		return err
	})
	reaperSweeper := service.NewSweeper("stale-skins", cfg.Cleanup.SkinSweepInterval, func(ctx context.Context) error {
		_, err := reaperService.RunOnce(ctx)
		return err
	})
	taskSweeper := service.NewSweeper("task-purge", cfg.Cleanup.TaskInterval, func(ctx context.Context) error {
		purged, err := taskService.PurgeCompleted(ctx)
		if err == nil && purged > 0 {
			log.Printf("[Sweeper:task-purge] Purged %d completed tasks", purged)
		}
		return err
	})

	retrySweeper.Start()
	reaperSweeper.Start()
	taskSweeper.Start()
	defer retrySweeper.Stop()
	defer reaperSweeper.Stop()
	defer taskSweeper.Stop()

	// Initialize handlers
	healthHandler := handler.New(store, cfg.App.Version)
	skinHandler := handler.NewSkinHandler(ingestService, profitableService, store.Skins())
	taskHandler := handler.NewTaskHandler(taskService)
	adminHandler := handler.NewAdminHandler(store)

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		SkinHandler:    skinHandler,
		TaskHandler:    taskHandler,
		AdminHandler:   adminHandler,
		AuthMiddleware: middleware.APIKey(cfg.App.APIKey),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
