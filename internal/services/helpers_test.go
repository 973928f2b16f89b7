package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
)

const testSeason = "2024-25"

func jan(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

// MockDataProvider for testing
type MockDataProvider struct {
	mock.Mock
}

func (m *MockDataProvider) GameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, datasource.Meta, error) {
	args := m.Called(ctx, playerID, season)
	lines, _ := args.Get(0).([]models.GameStatLine)
	return lines, args.Get(1).(datasource.Meta), args.Error(2)
}

func (m *MockDataProvider) TeamProfile(ctx context.Context, teamID, season string) (models.TeamProfile, datasource.Meta, error) {
	args := m.Called(ctx, teamID, season)
	return args.Get(0).(models.TeamProfile), args.Get(1).(datasource.Meta), args.Error(2)
}

func (m *MockDataProvider) Schedule(ctx context.Context, date time.Time) ([]models.ScheduledGame, datasource.Meta, error) {
	args := m.Called(ctx, date)
	games, _ := args.Get(0).([]models.ScheduledGame)
	return games, args.Get(1).(datasource.Meta), args.Error(2)
}

func (m *MockDataProvider) SeasonAverages(ctx context.Context, season string) ([]models.StatLine, datasource.Meta, error) {
	args := m.Called(ctx, season)
	lines, _ := args.Get(0).([]models.StatLine)
	return lines, args.Get(1).(datasource.Meta), args.Error(2)
}

func (m *MockDataProvider) PlayerPool(ctx context.Context, date time.Time) ([]models.PlayerStatus, datasource.Meta, error) {
	args := m.Called(ctx, date)
	pool, _ := args.Get(0).([]models.PlayerStatus)
	return pool, args.Get(1).(datasource.Meta), args.Error(2)
}

// fakePredictor returns a fixed value per player and records the contexts
// it was asked to predict under.
type fakePredictor struct {
	mu         sync.Mutex
	version    string
	values     map[string]float64
	confidence map[string]float64
	errs       map[string]error
	contexts   []ml.Context
	calls      int
	observed   []observation
}

type observation struct {
	playerID  string
	statistic string
	actual    float64
}

func newFakePredictor(values map[string]float64) *fakePredictor {
	return &fakePredictor{version: "v1", values: values, confidence: map[string]float64{}, errs: map[string]error{}}
}

func (f *fakePredictor) ModelVersion(stat string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakePredictor) setVersion(v string) {
	f.mu.Lock()
	f.version = v
	f.mu.Unlock()
}

func (f *fakePredictor) Observe(res *models.EnsembleResult, actual float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, observation{res.PlayerID, res.Statistic, actual})
}

func (f *fakePredictor) Predict(fv *models.FeatureVector, stat string, ctx ml.Context) (*models.EnsembleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.contexts = append(f.contexts, ctx)
	if err := f.errs[stat]; err != nil {
		return nil, err
	}
	v := f.values[fv.PlayerID]
	conf, ok := f.confidence[fv.PlayerID]
	if !ok {
		conf = 0.6
	}
	return &models.EnsembleResult{
		PlayerID:      fv.PlayerID,
		GameDate:      fv.AsOf,
		Statistic:     stat,
		ModelVersion:  f.version,
		Prediction:    models.ConfidenceResult{Value: v, Low: v - 5, High: v + 5, Confidence: conf},
		SeasonAverage: fv.Features[features.AvgName(stat, 30)],
	}, nil
}

// gameLog is five games on Jan 1-5 averaging 23 points.
func gameLog(playerID, team string) []models.GameStatLine {
	var lines []models.GameStatLine
	for i, pts := range []int{20, 22, 25, 24, 24} {
		lines = append(lines, models.GameStatLine{
			PlayerID: playerID,
			GameID:   fmt.Sprintf("g%d", i+1),
			GameDate: jan(i + 1),
			Season:   testSeason,
			Team:     team,
			Opponent: "BOS",
			Minutes:  32,
			Points:   pts,
			Rebounds: 6,
			Assists:  4,
		})
	}
	return lines
}

type recordingPublisher struct {
	mu     sync.Mutex
	slates [][]*models.PlayerPrediction
}

func (p *recordingPublisher) PublishSlate(ctx context.Context, date time.Time, slate []*models.PlayerPrediction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slates = append(p.slates, slate)
	return nil
}
