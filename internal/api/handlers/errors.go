package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/nba-projections/internal/backtest"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/utils"
)

const dateLayout = "2006-01-02"

// respondError maps domain errors onto the response envelope. Anything
// unrecognised is a 500 with the detail kept out of the body.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var incomplete *models.FeatureIncompleteError
	switch {
	case errors.As(err, &incomplete):
		appErr := utils.NewAppError(utils.ErrCodeFeatureIncomplete, "Not enough history to compute the required features", incomplete.Statistic)
		appErr.Missing = incomplete.Missing
		utils.SendUnprocessable(c, appErr)
	case errors.Is(err, models.ErrFeatureIncomplete):
		utils.SendUnprocessable(c, utils.NewAppError(utils.ErrCodeFeatureIncomplete, err.Error()))
	case errors.Is(err, models.ErrDataUnavailable):
		utils.SendUnavailable(c, utils.ErrCodeDataUnavailable, err.Error())
	case errors.Is(err, models.ErrModelUnavailable):
		utils.SendUnavailable(c, utils.ErrCodeModelUnavailable, err.Error())
	case errors.Is(err, models.ErrUnknownStatistic):
		utils.SendError(c, http.StatusBadRequest, utils.NewAppError(utils.ErrCodeUnknownStatistic, err.Error()))
	case errors.Is(err, backtest.ErrInvalidConfig), errors.Is(err, models.ErrInvalidGameStat):
		utils.SendValidationError(c, "Invalid request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		utils.SendError(c, http.StatusGatewayTimeout, utils.NewAppError(utils.ErrCodeInternal, "Request timed out"))
	default:
		utils.SendInternalError(c, "Internal server error")
	}
}

// parseDate reads an optional YYYY-MM-DD query parameter, defaulting to
// today in UTC.
func parseDate(c *gin.Context, name string, now func() time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		y, m, d := now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		utils.SendValidationError(c, "Invalid "+name, "expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
