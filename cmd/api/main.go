package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/reviewtrust/internal/config"
	"github.com/joshua-takyi/reviewtrust/internal/connect"
	"github.com/joshua-takyi/reviewtrust/internal/container"
	"github.com/joshua-takyi/reviewtrust/internal/models"
	"github.com/joshua-takyi/reviewtrust/internal/routes"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	logger.Info("Starting review trust API server", "environment", cfg.Environment, "store", cfg.StoreDriver)

	ctx := context.Background()
	clients := container.Clients{}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		repo := models.NewMemoryRepo()
		if cfg.BusinessSeedFile != "" {
			seed, err := config.LoadBusinessSeed(cfg.BusinessSeedFile)
			if err != nil {
				logger.Error("Failed to load business seed", "error", err)
				os.Exit(1)
			}
			for _, b := range seed {
				repo.PutBusiness(b)
			}
			logger.Info("Seeded businesses", "count", len(seed))
		}
		clients.Memory = repo
	default:
		supaClient, err := connect.InitSupabase(cfg)
		if err != nil {
			logger.Error("Failed to connect to Supabase", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to Supabase successfully")

		mongoClient, err := connect.MongoDBConnect(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to MongoDB successfully")

		if err := models.MongodbNewRepo(mongoClient, cfg.MongoDBDatabase).EnsureIndexes(ctx); err != nil {
			logger.Error("Failed to create indexes", "error", err)
			os.Exit(1)
		}
		clients.Supabase = supaClient
		clients.MongoDB = mongoClient
	}

	redisClient, err := connect.RedisConnect(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		logger.Info("Connected to Redis successfully")
	} else {
		logger.Warn("REDIS_HOST not set, locks and realtime events stay in-process")
	}
	clients.Redis = redisClient

	// Initialize dependency container
	appContainer, err := container.NewContainer(ctx, cfg, logger, clients)
	if err != nil {
		logger.Error("Failed to build application", "error", err)
		os.Exit(1)
	}
	appContainer.Outbox.Start()

	// Setup routes
	router, err := routes.SetupRoutes(appContainer)
	if err != nil {
		logger.Error("Failed to set up routes", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// requests are done, flush the notifications they queued
	if err := appContainer.Close(shutdownCtx); err != nil {
		logger.Error("Outbox did not drain", "error", err, "stats", appContainer.Outbox.Stats())
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Error closing Redis", "error", err)
		}
	}
	if err := connect.MongoDBDisconnect(clients.MongoDB); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	level := parseLevel(cfg.LogLevel, cfg.IsProduction())

	if cfg.IsProduction() {
		// JSON logging for production
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		// Human-readable logging for development
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// parseLevel honours LOG_LEVEL and otherwise keeps debug output for development.
func parseLevel(raw string, production bool) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
