package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// MADScale converts a median absolute deviation to a normal-equivalent
// standard deviation.
const MADScale = 1.4826

// precision is the number of decimal places every z-score and total carries.
const precision = 2

// Score values one stat line against a population. Every category of the
// format appears in the result; punted categories are 0 and excluded from
// the total. The total is the sum of the rounded category z-scores.
func Score(line models.StatLine, pop models.PopulationStats, f FormatSettings) models.ZScoreProfile {
	profile := models.ZScoreProfile{
		PlayerID: line.PlayerID,
		Name:     line.Name,
		Season:   line.Season,
		Format:   f.Name,
		Z:        make(map[string]float64, len(f.Categories)),
	}

	total := decimal.Zero
	for _, cat := range f.Categories {
		if f.isPunted(cat) {
			profile.Z[cat] = 0
			continue
		}
		z := round(categoryZ(cat, line.Values[cat], pop.Categories[cat]))
		profile.Z[cat] = z.InexactFloat64()
		total = total.Add(z)
	}
	profile.Total = total.Round(precision).InexactFloat64()
	return profile
}

// categoryZ computes the robust z-score, then applies the category direction.
func categoryZ(cat string, value float64, stats models.CategoryStats) float64 {
	sigma := stats.MAD * MADScale
	if sigma == 0 {
		return 0
	}
	z := (value - stats.Median) / sigma
	if lowerIsBetter[cat] {
		z = -z
	}
	return z
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(precision)
}

// Round2 rounds v to the valuation precision.
func Round2(v float64) float64 {
	return round(v).InexactFloat64()
}
