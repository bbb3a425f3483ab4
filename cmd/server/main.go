package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/internal/auth"
	"github.com/freeeve/banditlab/internal/config"
	"github.com/freeeve/banditlab/internal/handler"
	"github.com/freeeve/banditlab/internal/logger"
	"github.com/freeeve/banditlab/internal/middleware"
	"github.com/freeeve/banditlab/internal/repository/postgres"
	redisrepo "github.com/freeeve/banditlab/internal/repository/redis"
	"github.com/freeeve/banditlab/internal/service"
)

const (
	staleRunAge    = time.Hour
	reaperInterval = 5 * time.Minute
)

func main() {
	logger.InitFromEnv()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	runRepo := postgres.NewRunRepo(db)
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	expSvc := service.NewExperimentService(service.Options{
		Runs:        runRepo,
		Cache:       redisClient,
		Broadcaster: wsHub,
		Limits: service.Limits{
			MaxHorizon:      cfg.MaxHorizon,
			MaxReplications: cfg.MaxReplications,
		},
		KeepTrials: true,
	})

	// Runs left running by a previous process are never resumed.
	reaper := service.NewRunReaper(runRepo, staleRunAge, reaperInterval)
	go reaper.Start(ctx)

	// Router
	mux := http.NewServeMux()
	handler.Routes(mux, handler.NewRunHandler(expSvc), handler.NewWSHandler(wsHub, jwtMgr), jwtMgr)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
