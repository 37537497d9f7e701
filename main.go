package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-backend/cache"
	"storefront-backend/config"
	"storefront-backend/database"
	"storefront-backend/logger"
	"storefront-backend/middleware"
	"storefront-backend/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		slog.Error("error loading .env file", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service:   "storefront-backend",
		Env:       config.GetEnv("APP_ENV", "development"),
		Level:     config.GetEnv("LOG_LEVEL", "info"),
		AddSource: true,
	})

	if err := config.ValidateEnv(); err != nil {
		log.Error("environment validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect()
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := cache.NewRedisClient(ctx, os.Getenv("REDIS_URL"))
	if err != nil {
		// The catalog is served straight from the database without redis.
		log.Warn("running without catalog cache", "error", err)
	}
	catalog := cache.NewCatalogCache(redisClient, time.Duration(config.GetEnvInt("CATALOG_CACHE_TTL_SECONDS", 600))*time.Second)

	if config.GetEnvBool("SEED_PRODUCTS", false) {
		if err := database.SeedProducts(db); err != nil {
			log.Warn("could not seed products", "error", err)
		} else {
			catalog.Invalidate(ctx)
		}
	}

	if config.GetEnv("APP_ENV", "development") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(log), middleware.Recovery(log))

	origins := []string{"http://localhost:3000"}
	if frontend := os.Getenv("FRONTEND_URL"); frontend != "" {
		origins = []string{frontend}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(ctx, r, db, catalog, routes.Limits{
		AuthPerMinute: config.GetEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", routes.DefaultLimits.AuthPerMinute),
		CartPerMinute: config.GetEnvInt("CART_RATE_LIMIT_PER_MINUTE", routes.DefaultLimits.CartPerMinute),
	})

	port := config.GetEnv("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("error closing redis", "error", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("error closing database connection", "error", err)
		} else {
			log.Info("database connection closed")
		}
	}

	log.Info("server exited gracefully")
}
