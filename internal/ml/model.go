package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
)

// StatModel is the trained pair of base models for one statistic.
type StatModel struct {
	Statistic    string             `json:"statistic"`
	Version      string             `json:"version"`
	GBM          *QuantileGBM       `json:"gbm"`
	Sequence     *SequenceModel     `json:"sequence"`
	GBMWeight    float64            `json:"gbm_weight,omitempty"` // standard-profile weight from validation; 0 = profile default
	TrainStart   time.Time          `json:"train_start"`
	TrainEnd     time.Time          `json:"train_end"`
	TrainSamples int                `json:"train_samples"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Holdout      []Outcome          `json:"holdout,omitempty"`
}

// Outcome is one resolved holdout prediction: the standard-profile interval
// and the value the player actually recorded.
type Outcome struct {
	PlayerID string  `json:"player_id"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Actual   float64 `json:"actual"`
}

// TrainConfig controls Train.
type TrainConfig struct {
	GBM                GBMParams
	Sequence           SequenceParams
	ValidationFraction float64
	OptimizeWeights    bool
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		GBM:                DefaultGBMParams(),
		Sequence:           DefaultSequenceParams(),
		ValidationFraction: 0.2,
		OptimizeWeights:    true,
	}
}

const minValidationSamples = 5

// Train fits fresh base models on set. When weight optimisation is on and
// the set is large enough, the newest ValidationFraction of samples is
// held out: base models train on the rest and the standard-profile GBM
// weight is chosen on the holdout.
func Train(ctx context.Context, set *TrainingSet, cfg TrainConfig) (*StatModel, error) {
	if !models.IsTrackedStatistic(set.Statistic) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, set.Statistic)
	}
	set.sortByDate()

	train, valid := set, (*TrainingSet)(nil)
	if cfg.OptimizeWeights && cfg.ValidationFraction > 0 {
		split := int(float64(set.Len()) * (1 - cfg.ValidationFraction))
		if split >= MinTrainingSamples && set.Len()-split >= minValidationSamples {
			train = &TrainingSet{Statistic: set.Statistic, Samples: set.Samples[:split]}
			valid = &TrainingSet{Statistic: set.Statistic, Samples: set.Samples[split:]}
		}
	}

	gbm, err := TrainQuantileGBM(ctx, train, cfg.GBM)
	if err != nil {
		return nil, fmt.Errorf("train gbm for %s: %w", set.Statistic, err)
	}
	seq, err := TrainSequenceModel(train, cfg.Sequence)
	if err != nil {
		return nil, fmt.Errorf("train sequence model for %s: %w", set.Statistic, err)
	}

	start, end := set.Span()
	m := &StatModel{
		Statistic:    set.Statistic,
		Version:      modelVersion(end),
		GBM:          gbm,
		Sequence:     seq,
		TrainStart:   start,
		TrainEnd:     end,
		TrainSamples: train.Len(),
	}

	if valid != nil {
		gw, rmse := optimizeWeight(gbm, seq, valid)
		m.GBMWeight = gw
		m.Metrics = map[string]float64{
			"validation_rmse":    rmse,
			"validation_samples": float64(valid.Len()),
		}
		m.Holdout = holdoutOutcomes(gbm, seq, valid, gw)
	}
	return m, nil
}

// modelVersion is the feature set, the last training date and a random
// suffix, so two fits over the same window never share a version.
func modelVersion(end time.Time) string {
	return fmt.Sprintf("%s.%s.%s", features.FeatureSetVersion, end.Format("20060102"), uuid.NewString()[:8])
}

// holdoutOutcomes replays the validation samples through the standard
// profile with weight w and no history.
func holdoutOutcomes(gbm *QuantileGBM, seq *SequenceModel, valid *TrainingSet, w float64) []Outcome {
	calc := NewConfidenceCalculator(nil)
	out := make([]Outcome, 0, valid.Len())
	for _, smp := range valid.Samples {
		base := []models.BasePrediction{gbm.Predict(smp.Features), seq.Predict(smp.Features)}
		cal := calc.Calibrate(base, []float64{w, 1 - w}, smp.PlayerID, RiskFactors{})
		out = append(out, Outcome{
			PlayerID: smp.PlayerID,
			Low:      cal.Result.Low,
			High:     cal.Result.High,
			Actual:   smp.Target,
		})
	}
	return out
}

// optimizeWeight grid-searches the GBM weight over 0.30..0.75 in steps of
// 0.05 for the lowest validation RMSE. The first best weight wins ties.
func optimizeWeight(gbm *QuantileGBM, seq *SequenceModel, valid *TrainingSet) (float64, float64) {
	gp := make([]float64, valid.Len())
	sp := make([]float64, valid.Len())
	for i, smp := range valid.Samples {
		gp[i] = gbm.Predict(smp.Features).Point
		sp[i] = seq.Predict(smp.Features).Point
	}

	bestW, bestRMSE := 0.5, math.Inf(1)
	for step := 0; step < 10; step++ {
		w := 0.30 + 0.05*float64(step)
		var sse float64
		for i, smp := range valid.Samples {
			d := math.Max(0, w*gp[i]+(1-w)*sp[i]) - smp.Target
			sse += d * d
		}
		rmse := math.Sqrt(sse / float64(valid.Len()))
		if rmse < bestRMSE {
			bestRMSE, bestW = rmse, w
		}
	}
	return math.Round(bestW*100) / 100, bestRMSE
}

// profileWeights returns the weights used for ctx, applying the optimised
// GBM weight to the standard profile only.
func (m *StatModel) profileWeights(ctx Context) (Profile, error) {
	p, err := ProfileFor(ctx)
	if err != nil {
		return Profile{}, err
	}
	if ctx.Kind == ContextStandard && m.GBMWeight > 0 {
		p.GBM = m.GBMWeight
		p.Sequence = 1 - m.GBMWeight
	}
	return p, nil
}

// Hyperparameters flattens the model settings for the registry.
func (m *StatModel) Hyperparameters() map[string]float64 {
	h := map[string]float64{
		"gbm_estimators":          float64(m.GBM.Params.Estimators),
		"gbm_learning_rate":       m.GBM.Params.LearningRate,
		"gbm_max_depth":           float64(m.GBM.Params.MaxDepth),
		"gbm_min_leaf":            float64(m.GBM.Params.MinLeaf),
		"sequence_lambda":         m.Sequence.Params.Lambda,
		"sequence_half_life_days": m.Sequence.Params.HalfLifeDays,
	}
	if m.GBMWeight > 0 {
		h["gbm_weight"] = m.GBMWeight
	}
	return h
}
