package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/backtest"
	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

type stubSamples struct {
	from, to time.Time
	set      *ml.TrainingSet
}

func (s *stubSamples) TrainingSet(ctx context.Context, stat string, from, to time.Time) (*ml.TrainingSet, error) {
	s.from, s.to = from, to
	return s.set, nil
}

// flatSamples gives every day one sample whose 10-game average equals the
// outcome, so the rolling baseline is exact.
func flatSamples(stat string, from time.Time, days int) *ml.TrainingSet {
	set := &ml.TrainingSet{Statistic: stat}
	for d := 0; d < days; d++ {
		set.Samples = append(set.Samples, ml.Sample{
			PlayerID: "p1",
			Date:     from.AddDate(0, 0, d),
			Features: map[string]float64{features.AvgName(stat, 10): 20, features.StdName(stat, 10): 2},
			Target:   20,
		})
	}
	return set
}

func TestBacktestServiceLoadsLookback(t *testing.T) {
	src := &stubSamples{set: flatSamples(models.StatPoints, jan(1), 31)}
	svc := NewBacktestService(src, ml.DefaultTrainConfig(), logger.NewDiscardLogger(), nil)

	report, err := svc.Run(context.Background(), BacktestRequest{
		Statistic:       models.StatPoints,
		Model:           BacktestModelRollingAverage,
		Start:           jan(15),
		End:             jan(29),
		TrainWindowDays: 10,
		TestWindowDays:  7,
	})
	require.NoError(t, err)

	assert.Equal(t, jan(5), src.from)
	assert.Equal(t, jan(29), src.to)
	require.Len(t, report.Windows, 2)
	assert.Equal(t, 14, report.Aggregate.SampleCount)
	assert.Equal(t, 0.0, report.Aggregate.MAE)
	assert.Equal(t, 1.0, report.Aggregate.IntervalCoverage)
}

func TestBacktestServiceRejectsBadRequests(t *testing.T) {
	src := &stubSamples{set: &ml.TrainingSet{Statistic: models.StatPoints}}
	svc := NewBacktestService(src, ml.DefaultTrainConfig(), logger.NewDiscardLogger(), nil)
	ctx := context.Background()

	_, err := svc.Run(ctx, BacktestRequest{Statistic: "dunks", Start: jan(1), End: jan(9), TrainWindowDays: 5})
	assert.ErrorIs(t, err, models.ErrUnknownStatistic)

	_, err = svc.Run(ctx, BacktestRequest{Statistic: models.StatPoints, Model: "lstm", Start: jan(1), End: jan(9), TrainWindowDays: 5})
	assert.ErrorIs(t, err, backtest.ErrInvalidConfig)

	_, err = svc.Run(ctx, BacktestRequest{Statistic: models.StatPoints, Start: jan(1), End: jan(9)})
	assert.ErrorIs(t, err, backtest.ErrInvalidConfig)
	assert.True(t, src.from.IsZero(), "nothing is loaded for an invalid window")
}
