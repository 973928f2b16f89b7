package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/api/handlers"
	"github.com/stitts-dev/nba-projections/internal/api/middleware"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// Dependencies are the services the HTTP surface exposes. Nil handlers
// leave their routes unregistered.
type Dependencies struct {
	Predictions *handlers.PredictionHandler
	Rankings    *handlers.RankingHandler
	Backtests   *handlers.BacktestHandler
	Health      *handlers.HealthHandler
	Metrics     *metrics.Manager
	Logger      *logrus.Logger
}

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(deps.Logger), middleware.Metrics(deps.Metrics))
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Health != nil {
		router.GET("/health", deps.Health.GetHealth)
		router.GET("/jobs", deps.Health.GetJobs)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")

	if h := deps.Predictions; h != nil {
		v1.GET("/players/:id/predictions", h.GetPlayerPrediction)
		v1.GET("/players/:id/predictions/:stat", h.GetPlayerStat)
		v1.GET("/predictions/daily", h.GetDaily)
		v1.GET("/predictions/top", h.GetTop)
		v1.GET("/predictions/breakouts", h.GetBreakouts)
	}

	if h := deps.Rankings; h != nil {
		v1.GET("/rankings", h.GetRankings)
		v1.GET("/rankings/population", h.GetPopulation)
	}

	if h := deps.Backtests; h != nil {
		v1.POST("/backtests", h.RunBacktest)
	}
}
