package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/services"
	"github.com/stitts-dev/nba-projections/pkg/utils"
)

type BacktestRunner interface {
	Run(ctx context.Context, req services.BacktestRequest) (*models.BacktestReport, error)
}

type BacktestHandler struct {
	runner BacktestRunner
	logger *logrus.Logger
}

func NewBacktestHandler(runner BacktestRunner, logger *logrus.Logger) *BacktestHandler {
	return &BacktestHandler{runner: runner, logger: logger}
}

type backtestBody struct {
	Statistic       string `json:"statistic" binding:"required"`
	Model           string `json:"model"`
	Start           string `json:"start" binding:"required"`
	End             string `json:"end" binding:"required"`
	TrainWindowDays int    `json:"train_window_days" binding:"required,gt=0"`
	TestWindowDays  int    `json:"test_window_days"`
	StepDays        int    `json:"step_days"`
}

// RunBacktest replays stored history through a model and returns the
// per-window and aggregate accuracy metrics
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var body backtestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}
	start, err := time.Parse(dateLayout, body.Start)
	if err != nil {
		utils.SendValidationError(c, "Invalid start", "expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, body.End)
	if err != nil {
		utils.SendValidationError(c, "Invalid end", "expected YYYY-MM-DD")
		return
	}

	report, err := h.runner.Run(c.Request.Context(), services.BacktestRequest{
		Statistic:       body.Statistic,
		Model:           body.Model,
		Start:           start,
		End:             end,
		TrainWindowDays: body.TrainWindowDays,
		TestWindowDays:  body.TestWindowDays,
		StepDays:        body.StepDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, report, &utils.Meta{Count: len(report.Windows)})
}
