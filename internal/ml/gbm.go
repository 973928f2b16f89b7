package ml

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
)

// GBMParams configures the quantile gradient boosting model.
type GBMParams struct {
	Estimators   int     `json:"estimators"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`
	MinLeaf      int     `json:"min_leaf"`
}

func DefaultGBMParams() GBMParams {
	return GBMParams{
		Estimators:   100,
		LearningRate: 0.1,
		MaxDepth:     3,
		MinLeaf:      5,
	}
}

// Quantiles fitted by the GBM: lower bound, point, upper bound.
var gbmQuantiles = [3]float64{0.1, 0.5, 0.9}

type quantileBooster struct {
	Quantile     float64          `json:"quantile"`
	Init         float64          `json:"init"`
	LearningRate float64          `json:"learning_rate"`
	Trees        []regressionTree `json:"trees"`
}

func (b *quantileBooster) predict(x []float64) float64 {
	out := b.Init
	for i := range b.Trees {
		out += b.LearningRate * b.Trees[i].predict(x)
	}
	return out
}

// QuantileGBM is gradient-boosted regression trees trained with pinball
// loss, one booster per quantile.
type QuantileGBM struct {
	Statistic string            `json:"statistic"`
	Features  []string          `json:"features"`
	Params    GBMParams         `json:"params"`
	Boosters  []quantileBooster `json:"boosters"`
}

const gbmModelName = "quantile_gbm"

// GBMFeatures lists the GBM inputs for stat: its own rolling profile,
// playing time, shooting, form, opponent, schedule and calendar features.
func GBMFeatures(stat string) []string {
	names := make([]string, 0, 40)
	for _, w := range features.Windows {
		names = append(names, features.AvgName(stat, w), features.StdName(stat, w))
	}
	names = append(names, features.TrendName(stat), features.CVName(stat))
	if stat != models.StatMinutes {
		names = append(names,
			features.AvgName(models.StatMinutes, 5),
			features.AvgName(models.StatMinutes, 30),
			features.TrendName(models.StatMinutes),
		)
	}
	names = append(names,
		features.SampleSizeName(10),
		"fg_pct_10g",
		features.FeatureFantasyMomentum,
		features.FeatureHotStreak,
		features.FeatureColdStreak,
		features.FeatureGamesLast7d,
		features.FeatureOppDefRating,
		features.FeatureOppPace,
		features.FeatureOppDvP,
		features.FeatureRestDays,
		features.FeatureBackToBack,
		features.FeatureThreeInFour,
		features.FeatureIsHome,
		features.FeatureDayOfWeek,
		features.FeatureDaysIntoSeason,
		features.FeaturePostAllStar,
	)
	return names
}

// TrainQuantileGBM fits the low, median and high boosters in parallel.
func TrainQuantileGBM(ctx context.Context, set *TrainingSet, params GBMParams) (*QuantileGBM, error) {
	if set.Len() < MinTrainingSamples {
		return nil, fmt.Errorf("%w: %d samples for %s", ErrInsufficientData, set.Len(), set.Statistic)
	}
	names := GBMFeatures(set.Statistic)
	X, y := set.matrix(names)

	m := &QuantileGBM{
		Statistic: set.Statistic,
		Features:  names,
		Params:    params,
		Boosters:  make([]quantileBooster, len(gbmQuantiles)),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, q := range gbmQuantiles {
		i, q := i, q
		g.Go(func() error {
			b, err := fitBooster(ctx, X, y, q, params)
			if err != nil {
				return err
			}
			m.Boosters[i] = *b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func fitBooster(ctx context.Context, X [][]float64, y []float64, q float64, params GBMParams) (*quantileBooster, error) {
	n := len(y)
	b := &quantileBooster{
		Quantile:     q,
		Init:         quantile(q, y),
		LearningRate: params.LearningRate,
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = b.Init
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	grad := make([]float64, n)
	resid := make([]float64, n)
	tp := treeParams{maxDepth: params.MaxDepth, minLeaf: params.MinLeaf}

	for iter := 0; iter < params.Estimators; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range y {
			resid[i] = y[i] - pred[i]
			// negative gradient of the pinball loss
			if resid[i] > 0 {
				grad[i] = q
			} else {
				grad[i] = q - 1
			}
		}

		tree := growTree(X, grad, idx, tp)

		// leaf values are the q-quantile of the residuals that land there
		leafResid := make(map[int][]float64)
		for i := range y {
			leaf := tree.leafIndex(X[i])
			leafResid[leaf] = append(leafResid[leaf], resid[i])
		}
		for leaf, rs := range leafResid {
			tree.Nodes[leaf].Value = quantile(q, rs)
		}

		for i := range y {
			pred[i] += b.LearningRate * tree.predict(X[i])
		}
		b.Trees = append(b.Trees, *tree)
	}
	return b, nil
}

// Predict returns the low/median/high estimate for fv. Crossed quantiles
// are reordered and every bound is floored at zero.
func (m *QuantileGBM) Predict(fv map[string]float64) models.BasePrediction {
	x := vectorize(fv, m.Features)
	out := make([]float64, len(m.Boosters))
	for i := range m.Boosters {
		out[i] = math.Max(0, m.Boosters[i].predict(x))
	}
	sort.Float64s(out)
	return models.BasePrediction{
		Model:     gbmModelName,
		Kind:      models.ModelKindQuantileGBM,
		Statistic: m.Statistic,
		Low:       out[0],
		Point:     out[1],
		High:      out[2],
	}
}

// quantile is the empirical q-quantile of an unsorted sample.
func quantile(q float64, xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}
