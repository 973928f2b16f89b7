package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/cache"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func newTestService(data DataProvider, predictor Predictor, stats ...string) *PredictionService {
	cfg := DefaultServiceConfig()
	cfg.Season = testSeason
	cfg.Workers = 2
	if len(stats) > 0 {
		cfg.Statistics = stats
	}
	log := logger.NewDiscardLogger()
	return NewPredictionService(data, predictor, features.NewEngineer(log), cache.NewMemoryStore(), cfg, log, nil)
}

// slateProvider serves players p1..p3 on DEN against BOS and p4 on an idle
// team.
func slateProvider(bosRank int) *MockDataProvider {
	data := &MockDataProvider{}
	for _, id := range []string{"p1", "p2", "p3"} {
		data.On("GameLog", mock.Anything, id, testSeason).Return(gameLog(id, "DEN"), datasource.Meta{Source: "primary"}, nil)
	}
	data.On("GameLog", mock.Anything, "p4", testSeason).Return(gameLog("p4", "LAL"), datasource.Meta{Source: "primary"}, nil)
	data.On("PlayerPool", mock.Anything, mock.Anything).Return([]models.PlayerStatus{
		{PlayerID: "p3", Name: "Three", Team: "DEN", Position: "C"},
		{PlayerID: "p1", Name: "One", Team: "DEN", Position: "PG"},
		{PlayerID: "p4", Name: "Four", Team: "LAL", Position: "SF"},
		{PlayerID: "p2", Name: "Two", Team: "DEN", Position: "PG"},
	}, datasource.Meta{Source: "primary"}, nil)
	data.On("Schedule", mock.Anything, mock.Anything).Return([]models.ScheduledGame{
		{GameID: "g100", GameDate: jan(7), HomeTeam: "DEN", AwayTeam: "BOS"},
	}, datasource.Meta{Source: "primary"}, nil)
	data.On("TeamProfile", mock.Anything, "BOS", testSeason).Return(models.TeamProfile{
		TeamID: "BOS", Season: testSeason, DefRating: 108.5, Pace: 98.2, LeagueDefRank: bosRank,
	}, datasource.Meta{Source: "primary"}, nil)
	return data
}

func TestPredictStatCachesByModelVersion(t *testing.T) {
	data := slateProvider(3)
	predictor := newFakePredictor(map[string]float64{"p1": 28})
	svc := newTestService(data, predictor)
	ctx := context.Background()

	first, err := svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	require.NoError(t, err)
	assert.Equal(t, 28.0, first.Prediction.Value)
	assert.InDelta(t, 23.0, first.SeasonAverage, 1e-9)
	require.Len(t, predictor.contexts, 1)
	assert.Equal(t, ml.ContextEliteDefense, predictor.contexts[0].Kind)

	second, err := svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	require.NoError(t, err)
	assert.Equal(t, first.Prediction, second.Prediction)
	data.AssertNumberOfCalls(t, "GameLog", 1)
	assert.Equal(t, 1, predictor.calls)

	predictor.setVersion("v2")
	third, err := svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	require.NoError(t, err)
	assert.Equal(t, "v2", third.ModelVersion)
	data.AssertNumberOfCalls(t, "GameLog", 2)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "prediction:p1:2025-01-07:points:fs-2024.3.20250106",
		CacheKey("p1", jan(7), models.StatPoints, "fs-2024.3.20250106"))
}

func TestPredictStatErrors(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(&MockDataProvider{}, newFakePredictor(nil))
	_, err := svc.PredictStat(ctx, "p1", jan(7), "dunks")
	assert.ErrorIs(t, err, models.ErrUnknownStatistic)

	noModel := newFakePredictor(nil)
	noModel.setVersion("")
	svc = newTestService(&MockDataProvider{}, noModel)
	_, err = svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	assert.ErrorIs(t, err, models.ErrModelUnavailable)

	data := &MockDataProvider{}
	data.On("GameLog", mock.Anything, "p1", testSeason).Return(nil, datasource.Meta{}, &models.DataUnavailableError{
		Resource: "game_log",
		Attempts: []models.SourceAttempt{{Source: "primary", Skipped: true}},
	})
	svc = newTestService(data, newFakePredictor(nil))
	_, err = svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	// failures are not cached
	_, err = svc.PredictStat(ctx, "p1", jan(7), models.StatPoints)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	data.AssertNumberOfCalls(t, "GameLog", 2)
}

func TestStaleDataMarksPredictionDegraded(t *testing.T) {
	data := &MockDataProvider{}
	data.On("GameLog", mock.Anything, "p1", testSeason).Return(gameLog("p1", "DEN"), datasource.Meta{Source: "primary", Stale: true}, nil)
	data.On("PlayerPool", mock.Anything, mock.Anything).Return(nil, datasource.Meta{}, errors.New("pool down"))
	data.On("Schedule", mock.Anything, mock.Anything).Return(nil, datasource.Meta{}, errors.New("schedule down"))

	predictor := newFakePredictor(map[string]float64{"p1": 21})
	svc := newTestService(data, predictor)

	res, err := svc.PredictStat(context.Background(), "p1", jan(7), models.StatPoints)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.DegradedReasons, ReasonStaleData)
	// team falls back to the game log; no opponent known
	assert.Equal(t, ml.ContextStandard, predictor.contexts[0].Kind)
}

func TestGetPredictionReportsPerStatisticErrors(t *testing.T) {
	data := slateProvider(20)
	predictor := newFakePredictor(map[string]float64{"p1": 25})
	predictor.errs[models.StatRebounds] = &models.FeatureIncompleteError{PlayerID: "p1", Statistic: models.StatRebounds, Missing: []string{"rebounds_trend_10g"}}
	svc := newTestService(data, predictor, models.StatPoints, models.StatRebounds)

	pred, err := svc.GetPrediction(context.Background(), "p1", jan(7))
	require.NoError(t, err)
	assert.Equal(t, "One", pred.Name)
	assert.Equal(t, "DEN", pred.Team)
	assert.Contains(t, pred.Predictions, models.StatPoints)
	assert.NotContains(t, pred.Predictions, models.StatRebounds)
	assert.Contains(t, pred.Errors[models.StatRebounds], "rebounds_trend_10g")
	data.AssertNumberOfCalls(t, "GameLog", 1)

	predictor.errs[models.StatPoints] = predictor.errs[models.StatRebounds]
	_, err = svc.GetPrediction(context.Background(), "p2", jan(7))
	assert.ErrorIs(t, err, models.ErrFeatureIncomplete)
}

func TestGetDailyKeepsPoolOrderAndFilters(t *testing.T) {
	data := slateProvider(20)
	predictor := newFakePredictor(map[string]float64{"p1": 28, "p2": 27.6, "p3": 30, "p4": 40})
	predictor.confidence["p2"] = 0.2
	svc := newTestService(data, predictor, models.StatPoints)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	ctx := context.Background()

	daily, err := svc.GetDaily(ctx, jan(7), DailyFilters{})
	require.NoError(t, err)
	require.Len(t, daily, 3)
	assert.Equal(t, []string{"p3", "p1", "p2"}, []string{daily[0].PlayerID, daily[1].PlayerID, daily[2].PlayerID})
	assert.Equal(t, "Three", daily[0].Name)
	require.Len(t, pub.slates, 1)
	assert.Len(t, pub.slates[0], 3)

	guards, err := svc.GetDaily(ctx, jan(7), DailyFilters{Position: "PG", MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, guards, 1)
	assert.Equal(t, "p1", guards[0].PlayerID)
	assert.Len(t, pub.slates, 1, "filtered queries are not published")

	_, err = svc.GetDaily(ctx, jan(7), DailyFilters{Statistic: "dunks"})
	assert.ErrorIs(t, err, models.ErrUnknownStatistic)
}

func TestGetDailyStopsOnCancel(t *testing.T) {
	svc := newTestService(slateProvider(20), newFakePredictor(nil), models.StatPoints)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GetDaily(ctx, jan(7), DailyFilters{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetTop(t *testing.T) {
	predictor := newFakePredictor(map[string]float64{"p1": 28, "p2": 27.6, "p3": 30})
	svc := newTestService(slateProvider(20), predictor, models.StatPoints)

	top, err := svc.GetTop(context.Background(), 2, TopCriteria{Date: jan(7), Statistic: models.StatPoints})
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "p3", top[0].PlayerID)
	assert.Equal(t, "p1", top[1].PlayerID)
	assert.Equal(t, 2, top[1].Rank)
}

func TestGetBreakoutsUsesStrictThreshold(t *testing.T) {
	// every player averages 23 over the last 30 games: the line is 27.6
	predictor := newFakePredictor(map[string]float64{"p1": 28, "p2": 27.6, "p3": 30})
	svc := newTestService(slateProvider(20), predictor, models.StatPoints)

	breakouts, err := svc.GetBreakouts(context.Background(), jan(7), 0.20)
	require.NoError(t, err)
	require.Len(t, breakouts, 2)

	assert.Equal(t, "p3", breakouts[0].PlayerID)
	assert.Equal(t, 30.43, breakouts[0].DeltaPct)
	assert.Equal(t, "p1", breakouts[1].PlayerID)
	assert.Equal(t, 21.74, breakouts[1].DeltaPct)
	assert.InDelta(t, 23.0, breakouts[1].SeasonAverage, 1e-9)
	assert.Equal(t, models.StatPoints, breakouts[1].Statistic)
}

func TestBreakoutNeedsPositiveAverage(t *testing.T) {
	p := &models.PlayerPrediction{PlayerID: "p1"}
	_, ok := breakout(p, &models.EnsembleResult{Statistic: models.StatBlocks, Prediction: models.ConfidenceResult{Value: 1}}, 0.2)
	assert.False(t, ok)
	_, ok = breakout(p, &models.EnsembleResult{Statistic: models.StatBlocks, SeasonAverage: features.Missing, Prediction: models.ConfidenceResult{Value: 1}}, 0.2)
	assert.False(t, ok)
}
