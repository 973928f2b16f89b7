package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
)

// SequenceParams configures the recency-weighted ridge model.
type SequenceParams struct {
	Lambda       float64 `json:"lambda"`
	HalfLifeDays float64 `json:"half_life_days"`
}

func DefaultSequenceParams() SequenceParams {
	return SequenceParams{Lambda: 1.0, HalfLifeDays: 30}
}

// SequenceModel regresses the statistic on the ordered rolling-window
// sequence for that statistic (short to long averages, spread, trend and
// consistency). Training rows are weighted by recency and coefficients are
// ridge-penalised on standardised inputs. Bounds come from the empirical
// 10th and 90th percentile training residuals.
type SequenceModel struct {
	Statistic string         `json:"statistic"`
	Features  []string       `json:"features"`
	Params    SequenceParams `json:"params"`
	Means     []float64      `json:"means"`
	Scales    []float64      `json:"scales"`
	Coef      []float64      `json:"coef"`
	Intercept float64        `json:"intercept"`
	ResidLow  float64        `json:"resid_low"`
	ResidHigh float64        `json:"resid_high"`
}

const sequenceModelName = "sequence_ridge"

// SequenceFeatures lists the inputs the sequence model uses for stat.
func SequenceFeatures(stat string) []string {
	names := make([]string, 0, len(features.Windows)+3)
	for _, w := range features.Windows {
		names = append(names, features.AvgName(stat, w))
	}
	return append(names, features.StdName(stat, 10), features.TrendName(stat), features.CVName(stat))
}

func TrainSequenceModel(set *TrainingSet, params SequenceParams) (*SequenceModel, error) {
	if set.Len() < MinTrainingSamples {
		return nil, fmt.Errorf("%w: %d samples for %s", ErrInsufficientData, set.Len(), set.Statistic)
	}
	names := SequenceFeatures(set.Statistic)
	X, y := set.matrix(names)
	n, p := len(y), len(names)

	// recency weights relative to the newest sample
	_, newest := set.Span()
	w := make([]float64, n)
	wsum := 0.0
	for i, smp := range set.Samples {
		age := newest.Sub(smp.Date).Hours() / 24
		w[i] = math.Pow(0.5, age/params.HalfLifeDays)
		wsum += w[i]
	}

	m := &SequenceModel{
		Statistic: set.Statistic,
		Features:  names,
		Params:    params,
		Means:     make([]float64, p),
		Scales:    make([]float64, p),
	}
	for j := 0; j < p; j++ {
		var mu, sq float64
		for i := 0; i < n; i++ {
			mu += w[i] * X[i][j]
		}
		mu /= wsum
		for i := 0; i < n; i++ {
			d := X[i][j] - mu
			sq += w[i] * d * d
		}
		sd := math.Sqrt(sq / wsum)
		if sd < 1e-9 {
			sd = 1
		}
		m.Means[j], m.Scales[j] = mu, sd
	}

	var ybar float64
	for i := 0; i < n; i++ {
		ybar += w[i] * y[i]
	}
	ybar /= wsum
	m.Intercept = ybar

	// rows scaled by sqrt(w) turn weighted least squares into ordinary
	xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			xw.Set(i, j, sw*(X[i][j]-m.Means[j])/m.Scales[j])
		}
		yw.SetVec(i, sw*(y[i]-ybar))
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xw.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+params.Lambda)
	}
	var rhs mat.VecDense
	rhs.MulVec(xw.T(), yw)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, errors.New("sequence model: normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		return nil, fmt.Errorf("sequence model: %w", err)
	}
	m.Coef = make([]float64, p)
	for j := 0; j < p; j++ {
		m.Coef[j] = beta.AtVec(j)
	}

	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		resid[i] = y[i] - m.raw(X[i])
	}
	m.ResidLow = quantile(0.1, resid)
	m.ResidHigh = quantile(0.9, resid)
	return m, nil
}

func (m *SequenceModel) raw(x []float64) float64 {
	out := m.Intercept
	for j, c := range m.Coef {
		out += c * (x[j] - m.Means[j]) / m.Scales[j]
	}
	return out
}

func (m *SequenceModel) Predict(fv map[string]float64) models.BasePrediction {
	x := vectorize(fv, m.Features)
	point := math.Max(0, m.raw(x))
	return models.BasePrediction{
		Model:     sequenceModelName,
		Kind:      models.ModelKindSequence,
		Statistic: m.Statistic,
		Point:     point,
		Low:       math.Max(0, point+m.ResidLow),
		High:      math.Max(point, point+m.ResidHigh),
	}
}

// Factors returns the largest signed contributions to the prediction,
// coefficient times standardised input, largest magnitude first.
func (m *SequenceModel) Factors(fv map[string]float64, limit int) []models.Factor {
	x := vectorize(fv, m.Features)
	out := make([]models.Factor, 0, len(m.Coef))
	for j, c := range m.Coef {
		z := (x[j] - m.Means[j]) / m.Scales[j]
		impact := c * z
		if math.Abs(impact) < 1e-9 {
			continue
		}
		direction := "above"
		if z < 0 {
			direction = "below"
		}
		out = append(out, models.Factor{
			Name:        m.Features[j],
			Impact:      math.Round(impact*1000) / 1000,
			Description: fmt.Sprintf("%s is %.2f, %s the training mean of %.2f", m.Features[j], x[j], direction, m.Means[j]),
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Impact) > math.Abs(out[b].Impact)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
