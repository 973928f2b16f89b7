package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// Outcome pairs one prediction with what actually happened.
type Outcome struct {
	Predicted float64
	Low       float64
	High      float64
	Actual    float64
}

// Evaluate scores a window's outcomes. Rates are fractions in [0, 1];
// MAPE is a percentage over non-zero actuals. Directional accuracy asks
// whether prediction and actual fall on the same side of the window's mean
// actual.
func Evaluate(outcomes []Outcome) models.BacktestMetrics {
	n := len(outcomes)
	if n == 0 {
		return models.BacktestMetrics{}
	}

	actuals := make([]float64, n)
	for i, o := range outcomes {
		actuals[i] = o.Actual
	}
	meanActual := stat.Mean(actuals, nil)

	var absErr, sqErr, ssTot, ape float64
	var apeN, direction, within10, within20, covered int
	for _, o := range outcomes {
		diff := o.Predicted - o.Actual
		absErr += math.Abs(diff)
		sqErr += diff * diff
		d := o.Actual - meanActual
		ssTot += d * d

		if o.Actual != 0 {
			ape += math.Abs(diff / o.Actual)
			apeN++
		}
		if (o.Predicted > meanActual) == (o.Actual > meanActual) {
			direction++
		}
		if math.Abs(diff) <= 0.10*math.Abs(o.Actual) {
			within10++
		}
		if math.Abs(diff) <= 0.20*math.Abs(o.Actual) {
			within20++
		}
		if o.Actual >= o.Low && o.Actual <= o.High {
			covered++
		}
	}

	fn := float64(n)
	m := models.BacktestMetrics{
		MAE:                 absErr / fn,
		RMSE:                math.Sqrt(sqErr / fn),
		DirectionalAccuracy: float64(direction) / fn,
		Within10Pct:         float64(within10) / fn,
		Within20Pct:         float64(within20) / fn,
		IntervalCoverage:    float64(covered) / fn,
		SampleCount:         n,
	}
	if ssTot > 0 {
		m.R2 = 1 - sqErr/ssTot
	}
	if apeN > 0 {
		m.MAPE = ape / float64(apeN) * 100
	}
	return m
}

// Aggregate combines window metrics as means weighted by sample count.
// Skipped windows carry no samples and do not contribute.
func Aggregate(windows []models.BacktestWindowResult) models.BacktestMetrics {
	var out models.BacktestMetrics
	total := 0
	for _, w := range windows {
		if w.Skipped || w.Metrics.SampleCount == 0 {
			continue
		}
		k := float64(w.Metrics.SampleCount)
		out.MAE += k * w.Metrics.MAE
		out.RMSE += k * w.Metrics.RMSE
		out.R2 += k * w.Metrics.R2
		out.MAPE += k * w.Metrics.MAPE
		out.DirectionalAccuracy += k * w.Metrics.DirectionalAccuracy
		out.Within10Pct += k * w.Metrics.Within10Pct
		out.Within20Pct += k * w.Metrics.Within20Pct
		out.IntervalCoverage += k * w.Metrics.IntervalCoverage
		total += w.Metrics.SampleCount
	}
	if total == 0 {
		return out
	}
	t := float64(total)
	out.MAE /= t
	out.RMSE /= t
	out.R2 /= t
	out.MAPE /= t
	out.DirectionalAccuracy /= t
	out.Within10Pct /= t
	out.Within20Pct /= t
	out.IntervalCoverage /= t
	out.SampleCount = total
	return out
}
