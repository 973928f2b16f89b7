package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
	"github.com/stitts-dev/nba-projections/pkg/utils"
)

// Ranker values players against the season population.
type Ranker interface {
	Rank(ctx context.Context, format valuation.FormatSettings) ([]models.ZScoreProfile, error)
	Population(ctx context.Context) (models.PopulationStats, error)
}

type RankingHandler struct {
	ranker Ranker
	logger *logrus.Logger
}

func NewRankingHandler(ranker Ranker, logger *logrus.Logger) *RankingHandler {
	return &RankingHandler{ranker: ranker, logger: logger}
}

// GetRankings ranks players by total z-score. Query parameters:
// categories (comma list, default 9-cat), punt (comma list), limit.
func (h *RankingHandler) GetRankings(c *gin.Context) {
	format, err := formatFromQuery(c.Query("categories"), c.Query("punt"))
	if err != nil {
		utils.SendValidationError(c, "Invalid format", err.Error())
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			utils.SendValidationError(c, "Invalid limit", "expected a positive integer")
			return
		}
	}

	ranked, err := h.ranker.Rank(c.Request.Context(), format)
	if err != nil {
		respondError(c, err)
		return
	}
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	utils.SendSuccessWithMeta(c, ranked, &utils.Meta{Count: len(ranked)})
}

// GetPopulation returns the cohort medians and MADs
func (h *RankingHandler) GetPopulation(c *gin.Context) {
	pop, err := h.ranker.Population(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, pop)
}

func formatFromQuery(categories, punts string) (valuation.FormatSettings, error) {
	return valuation.NewFormat(splitCSV(categories), splitCSV(punts))
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
