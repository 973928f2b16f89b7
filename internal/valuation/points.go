package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// doubleThreshold is the value a counting stat must reach to count toward a
// double-double or triple-double.
const doubleThreshold = 10

var doubleCategories = []string{CatPoints, CatRebounds, CatAssists, CatSteals, CatBlocks}

type PointValues struct {
	Weights           map[string]float64 `json:"weights"`
	DoubleDoubleBonus float64            `json:"double_double_bonus"`
	TripleDoubleBonus float64            `json:"triple_double_bonus"`
}

func DefaultPointValues() PointValues {
	return PointValues{
		Weights: map[string]float64{
			CatPoints:    1,
			CatRebounds:  1.2,
			CatAssists:   1.5,
			CatSteals:    3,
			CatBlocks:    3,
			CatTurnovers: -1,
		},
		DoubleDoubleBonus: 1.5,
		TripleDoubleBonus: 3,
	}
}

// ScorePoints sums value*weight over the weighted categories and adds a
// triple-double bonus or, failing that, a double-double bonus.
func ScorePoints(line models.StatLine, pv PointValues) float64 {
	total := decimal.Zero
	for cat, w := range pv.Weights {
		total = total.Add(decimal.NewFromFloat(line.Values[cat]).Mul(decimal.NewFromFloat(w)))
	}

	doubles := 0
	for _, cat := range doubleCategories {
		if line.Values[cat] >= doubleThreshold {
			doubles++
		}
	}
	switch {
	case doubles >= 3:
		total = total.Add(decimal.NewFromFloat(pv.TripleDoubleBonus))
	case doubles == 2:
		total = total.Add(decimal.NewFromFloat(pv.DoubleDoubleBonus))
	}
	return total.Round(precision).InexactFloat64()
}
