package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/api"
	"github.com/stitts-dev/nba-projections/internal/api/handlers"
	"github.com/stitts-dev/nba-projections/internal/app"
	"github.com/stitts-dev/nba-projections/pkg/config"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

const serviceName = "nba-projections"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("", cfg.IsDevelopment())
	log := logger.WithService(serviceName)
	log.WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
		"season":      cfg.Season,
		"sources":     cfg.DataSources,
	}).Info("Starting NBA projections service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.NewManager()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, structuredLogger, m)
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}
	defer a.Close()

	if err := a.LoadModels(ctx); err != nil {
		log.WithError(err).Warn("Serving without production models")
	}

	if cfg.EnableScheduler {
		if err := a.StartScheduler(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	router := api.NewRouter(api.Dependencies{
		Predictions: handlers.NewPredictionHandler(a.Predictions, structuredLogger),
		Rankings:    handlers.NewRankingHandler(a.Rankings, structuredLogger),
		Backtests:   handlers.NewBacktestHandler(a.Backtests, structuredLogger),
		Health:      handlers.NewHealthHandler(a.DB, a.Client, a.Predictor, a.Predictions.Statistics(), a.Scheduler, structuredLogger),
		Metrics:     m,
		Logger:      structuredLogger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("NBA projections service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down NBA projections service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.EnableScheduler {
		a.Scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("NBA projections service exited")
}
