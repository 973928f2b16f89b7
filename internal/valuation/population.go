package valuation

import (
	"math"
	"sort"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// DefaultMinGamesPlayed is the cohort qualification threshold used when none
// is configured.
const DefaultMinGamesPlayed = 10

// BuildPopulation computes the median and MAD of every format category over
// players with at least minGames games played.
func BuildPopulation(lines []models.StatLine, f FormatSettings, season string, minGames int) models.PopulationStats {
	if minGames < 0 {
		minGames = 0
	}
	pop := models.PopulationStats{
		Season:         season,
		Format:         f.Name,
		MinGamesPlayed: minGames,
		Categories:     make(map[string]models.CategoryStats, len(f.Categories)),
	}

	cohort := make([]models.StatLine, 0, len(lines))
	for _, l := range lines {
		if l.GamesPlayed >= minGames {
			cohort = append(cohort, l)
		}
	}
	pop.Size = len(cohort)

	for _, cat := range f.Categories {
		values := make([]float64, 0, len(cohort))
		for _, l := range cohort {
			if v, ok := l.Values[cat]; ok && !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			pop.Categories[cat] = models.CategoryStats{}
			continue
		}
		med := median(values)
		dev := make([]float64, len(values))
		for i, v := range values {
			dev[i] = math.Abs(v - med)
		}
		pop.Categories[cat] = models.CategoryStats{Median: med, MAD: median(dev)}
	}
	return pop
}

// median averages the two middle values for even-length input. values is
// sorted in place.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
