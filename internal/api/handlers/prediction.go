package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/services"
	"github.com/stitts-dev/nba-projections/pkg/utils"
)

// PredictionProvider is the prediction service as the handlers see it.
type PredictionProvider interface {
	GetPrediction(ctx context.Context, playerID string, date time.Time) (*models.PlayerPrediction, error)
	PredictStat(ctx context.Context, playerID string, date time.Time, stat string) (*models.EnsembleResult, error)
	GetDaily(ctx context.Context, date time.Time, filters services.DailyFilters) ([]*models.PlayerPrediction, error)
	GetTop(ctx context.Context, n int, criteria services.TopCriteria) ([]services.RankedPrediction, error)
	GetBreakouts(ctx context.Context, date time.Time, thresholdPct float64) ([]models.Breakout, error)
}

type PredictionHandler struct {
	predictions PredictionProvider
	logger      *logrus.Logger
	now         func() time.Time
}

func NewPredictionHandler(predictions PredictionProvider, logger *logrus.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		logger:      logger,
		now:         time.Now,
	}
}

// GetPlayerPrediction returns every configured statistic for one player
func (h *PredictionHandler) GetPlayerPrediction(c *gin.Context) {
	date, ok := parseDate(c, "date", h.now)
	if !ok {
		return
	}

	pred, err := h.predictions.GetPrediction(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, pred, &utils.Meta{Count: len(pred.Predictions), Degraded: pred.Degraded})
}

// GetPlayerStat returns one statistic's prediction for a player
func (h *PredictionHandler) GetPlayerStat(c *gin.Context) {
	date, ok := parseDate(c, "date", h.now)
	if !ok {
		return
	}

	res, err := h.predictions.PredictStat(c.Request.Context(), c.Param("id"), date, c.Param("stat"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, res, &utils.Meta{ModelVersion: res.ModelVersion, Degraded: res.Degraded})
}

// GetDaily returns predictions for the slate on a date
func (h *PredictionHandler) GetDaily(c *gin.Context) {
	date, ok := parseDate(c, "date", h.now)
	if !ok {
		return
	}
	filters := services.DailyFilters{
		Team:      c.Query("team"),
		Position:  c.Query("position"),
		Statistic: c.Query("statistic"),
	}
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			utils.SendValidationError(c, "Invalid min_confidence", "expected a number between 0 and 1")
			return
		}
		filters.MinConfidence = v
	}

	daily, err := h.predictions.GetDaily(c.Request.Context(), date, filters)
	if err != nil {
		respondError(c, err)
		return
	}
	degraded := false
	for _, p := range daily {
		degraded = degraded || p.Degraded
	}
	utils.SendSuccessWithMeta(c, daily, &utils.Meta{Count: len(daily), Degraded: degraded})
}

// GetTop returns the highest projections for a statistic
func (h *PredictionHandler) GetTop(c *gin.Context) {
	date, ok := parseDate(c, "date", h.now)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		utils.SendValidationError(c, "Invalid limit", "expected a positive integer")
		return
	}

	top, err := h.predictions.GetTop(c.Request.Context(), limit, services.TopCriteria{
		Date:      date,
		Statistic: c.Query("statistic"),
		Position:  c.Query("position"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, top, &utils.Meta{Count: len(top)})
}

// GetBreakouts returns projections well above the player's recent average
func (h *PredictionHandler) GetBreakouts(c *gin.Context) {
	date, ok := parseDate(c, "date", h.now)
	if !ok {
		return
	}
	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			utils.SendValidationError(c, "Invalid threshold", "expected a positive fraction, e.g. 0.2")
			return
		}
		threshold = v
	}

	breakouts, err := h.predictions.GetBreakouts(c.Request.Context(), date, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	if breakouts == nil {
		breakouts = []models.Breakout{}
	}
	utils.SendSuccessWithMeta(c, breakouts, &utils.Meta{Count: len(breakouts)})
}
