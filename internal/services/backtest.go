package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/backtest"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// Backtest model names
const (
	BacktestModelEnsemble       = "ensemble"
	BacktestModelRollingAverage = "rolling_average"
)

// BacktestRequest describes one walk-forward evaluation.
type BacktestRequest struct {
	Statistic       string    `json:"statistic"`
	Model           string    `json:"model"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	TrainWindowDays int       `json:"train_window_days"`
	TestWindowDays  int       `json:"test_window_days"`
	StepDays        int       `json:"step_days"`
}

// SampleSource builds labelled samples from stored history.
type SampleSource interface {
	TrainingSet(ctx context.Context, stat string, from, to time.Time) (*ml.TrainingSet, error)
}

type BacktestService struct {
	samples SampleSource
	train   ml.TrainConfig
	logger  *logrus.Logger
	entry   *logrus.Entry
	metrics *metrics.Manager
}

func NewBacktestService(samples SampleSource, train ml.TrainConfig, log *logrus.Logger, m *metrics.Manager) *BacktestService {
	return &BacktestService{
		samples: samples,
		train:   train,
		logger:  log,
		entry:   logger.WithComponent(log, "backtest_service"),
		metrics: m,
	}
}

// Run loads the samples the request needs, including the training lookback
// before Start, and replays them through the requested model.
func (s *BacktestService) Run(ctx context.Context, req BacktestRequest) (*models.BacktestReport, error) {
	if !models.IsTrackedStatistic(req.Statistic) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, req.Statistic)
	}
	factory, err := s.factory(req.Model)
	if err != nil {
		return nil, err
	}
	if req.TestWindowDays <= 0 {
		req.TestWindowDays = 7
	}
	if req.StepDays <= 0 {
		req.StepDays = req.TestWindowDays
	}

	cfg := backtest.Config{
		Start:           req.Start,
		End:             req.End,
		TrainWindowDays: req.TrainWindowDays,
		TestWindowDays:  req.TestWindowDays,
		StepDays:        req.StepDays,
	}
	if req.TrainWindowDays <= 0 || req.Start.IsZero() || req.End.IsZero() {
		// let the engine report the exact problem without loading anything
		return backtest.NewEngine(&ml.TrainingSet{Statistic: req.Statistic}, s.logger, s.metrics).Run(ctx, factory, cfg)
	}

	from := day(req.Start).AddDate(0, 0, -req.TrainWindowDays)
	set, err := s.samples.TrainingSet(ctx, req.Statistic, from, day(req.End))
	if err != nil {
		return nil, err
	}

	s.entry.WithFields(logrus.Fields{
		"statistic": req.Statistic,
		"model":     req.Model,
		"samples":   set.Len(),
	}).Info("Starting backtest")
	return backtest.NewEngine(set, s.logger, s.metrics).Run(ctx, factory, cfg)
}

func (s *BacktestService) factory(name string) (backtest.Factory, error) {
	switch name {
	case "", BacktestModelEnsemble:
		return backtest.EnsembleFactory(s.train, s.logger), nil
	case BacktestModelRollingAverage:
		return backtest.RollingAverageFactory(), nil
	}
	return nil, fmt.Errorf("%w: unknown model %q", backtest.ErrInvalidConfig, name)
}
