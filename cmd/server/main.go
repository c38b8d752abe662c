// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/depomat/stockbi/internal/api"
	"github.com/depomat/stockbi/internal/cache"
	"github.com/depomat/stockbi/internal/config"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/depomat/stockbi/internal/repository/postgres"
	"github.com/depomat/stockbi/internal/service"
	"github.com/depomat/stockbi/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.App.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("timezone", cfg.App.Timezone).Msg("Invalid timezone")
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	reportCache, err := cache.NewReportCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Cache unavailable, serving without it")
		reportCache = cache.NewNoopReportCache()
	}

	reports := service.NewReportService(
		repository.NewKpiRepository(db.DB),
		repository.NewAlertRepository(db.DB),
		repository.NewVelocityRepository(db.DB),
		reportCache,
	)

	router := api.NewRouter(reports, loc, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
