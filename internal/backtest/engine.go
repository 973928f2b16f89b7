package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

var (
	ErrInvalidConfig = errors.New("invalid backtest config")
	// ErrLeakage means a training sample was dated on or after the start of
	// the window it was used to predict.
	ErrLeakage = errors.New("training data overlaps test window")
)

// Skip reasons recorded on windows that produced no metrics
const (
	SkipNoTrainingData = "no_training_samples"
	SkipNoTestData     = "no_test_samples"
	SkipTrainFailed    = "training_failed"
)

// Model is a trained predictor under evaluation.
type Model interface {
	Predict(s ml.Sample) (models.ConfidenceResult, error)
}

// Factory fits a fresh Model on one training window.
type Factory func(ctx context.Context, train *ml.TrainingSet) (Model, error)

// Config describes a walk-forward backtest. Dates are truncated to days.
type Config struct {
	Start           time.Time
	End             time.Time
	TrainWindowDays int
	TestWindowDays  int
	StepDays        int
	// Workers bounds parallel inference within a window; 0 = NumCPU.
	Workers int
	// OnWindow, when set, receives each window result as it completes.
	OnWindow func(models.BacktestWindowResult)
}

func (c Config) validate() error {
	switch {
	case c.Start.IsZero() || c.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidConfig)
	case c.End.Before(c.Start):
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidConfig, c.End.Format(dayLayout), c.Start.Format(dayLayout))
	case c.TrainWindowDays <= 0 || c.TestWindowDays <= 0 || c.StepDays <= 0:
		return fmt.Errorf("%w: window sizes and step must be positive", ErrInvalidConfig)
	}
	return nil
}

const dayLayout = "2006-01-02"

// Engine replays one statistic's sample history through fresh models.
type Engine struct {
	set     *ml.TrainingSet
	logger  *logrus.Entry
	metrics *metrics.Manager
}

func NewEngine(set *ml.TrainingSet, log *logrus.Logger, m *metrics.Manager) *Engine {
	return &Engine{
		set:     set,
		logger:  logger.WithComponent(log, "backtest").WithField("statistic", set.Statistic),
		metrics: m,
	}
}

// Run walks a cursor from Start to End. At each step a model is trained on
// samples dated in [cursor-train, cursor] and evaluated on
// [cursor+1, min(cursor+test, End)]; the cursor then advances by StepDays.
// Windows without training or test samples are recorded as skipped.
func (e *Engine) Run(ctx context.Context, factory Factory, cfg Config) (*models.BacktestReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start, end := day(cfg.Start), day(cfg.End)
	report := &models.BacktestReport{
		Statistic: e.set.Statistic,
		Start:     start,
		End:       end,
	}

	e.logger.WithFields(logrus.Fields{
		"start":      start.Format(dayLayout),
		"end":        end.Format(dayLayout),
		"train_days": cfg.TrainWindowDays,
		"test_days":  cfg.TestWindowDays,
		"step_days":  cfg.StepDays,
		"samples":    e.set.Len(),
	}).Info("Starting backtest")

	for cursor := start; !cursor.AddDate(0, 0, 1).After(end); cursor = cursor.AddDate(0, 0, cfg.StepDays) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		win, err := e.runWindow(ctx, factory, cfg, cursor, end)
		if err != nil {
			return nil, err
		}
		report.Windows = append(report.Windows, win)

		status := "completed"
		if win.Skipped {
			status = "skipped"
		}
		e.metrics.RecordBacktestWindow(status)
		if cfg.OnWindow != nil {
			cfg.OnWindow(win)
		}
	}

	report.Aggregate = Aggregate(report.Windows)
	e.logger.WithFields(logrus.Fields{
		"windows": len(report.Windows),
		"samples": report.Aggregate.SampleCount,
		"mae":     report.Aggregate.MAE,
	}).Info("Backtest complete")
	return report, nil
}

func (e *Engine) runWindow(ctx context.Context, factory Factory, cfg Config, cursor, end time.Time) (models.BacktestWindowResult, error) {
	testStart := cursor.AddDate(0, 0, 1)
	testEnd := cursor.AddDate(0, 0, cfg.TestWindowDays)
	if testEnd.After(end) {
		testEnd = end
	}
	win := models.BacktestWindowResult{
		TrainStart: cursor.AddDate(0, 0, -cfg.TrainWindowDays),
		TrainEnd:   cursor,
		TestStart:  testStart,
		TestEnd:    testEnd,
	}

	train := between(e.set, win.TrainStart, win.TrainEnd)
	test := between(e.set, testStart, testEnd)
	win.TrainSamples = train.Len()

	for _, s := range train.Samples {
		if !day(s.Date).Before(testStart) {
			return win, fmt.Errorf("%w: sample for %s dated %s, test starts %s",
				ErrLeakage, s.PlayerID, s.Date.Format(dayLayout), testStart.Format(dayLayout))
		}
	}

	switch {
	case train.Len() == 0:
		win.Skipped, win.SkipReason = true, SkipNoTrainingData
		return win, nil
	case test.Len() == 0:
		win.Skipped, win.SkipReason = true, SkipNoTestData
		return win, nil
	}

	model, err := factory(ctx, train)
	if err != nil {
		if ctx.Err() != nil {
			return win, ctx.Err()
		}
		e.logger.WithError(err).WithField("train_end", cursor.Format(dayLayout)).Warn("Skipping window, model training failed")
		win.Skipped, win.SkipReason = true, SkipTrainFailed
		return win, nil
	}

	preds, err := e.infer(ctx, model, test, cfg.Workers)
	if err != nil {
		return win, err
	}
	win.Metrics = Evaluate(preds)
	return win, nil
}

// infer predicts every test sample over a bounded pool. Samples the model
// refuses are logged and left out of the window's metrics.
func (e *Engine) infer(ctx context.Context, model Model, test *ml.TrainingSet, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*Outcome, test.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range test.Samples {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := test.Samples[i]
			pred, err := model.Predict(s)
			if err != nil {
				e.logger.WithError(err).WithField("player_id", s.PlayerID).Debug("Prediction failed during backtest")
				return nil
			}
			results[i] = &Outcome{
				Predicted: pred.Value,
				Low:       pred.Low,
				High:      pred.High,
				Actual:    s.Target,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Outcome, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// between selects samples whose calendar day is in [from, to].
func between(set *ml.TrainingSet, from, to time.Time) *ml.TrainingSet {
	out := &ml.TrainingSet{Statistic: set.Statistic}
	for _, s := range set.Samples {
		d := day(s.Date)
		if d.Before(from) || d.After(to) {
			continue
		}
		out.Samples = append(out.Samples, s)
	}
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EnsembleFactory trains the production model pipeline on each window.
func EnsembleFactory(cfg ml.TrainConfig, log *logrus.Logger) Factory {
	return func(ctx context.Context, train *ml.TrainingSet) (Model, error) {
		m, err := ml.Train(ctx, train, cfg)
		if err != nil {
			return nil, err
		}
		return &ensembleModel{
			statistic: train.Statistic,
			predictor: ml.NewEnsemblePredictor(ml.NewRegistry(m), nil, log),
		}, nil
	}
}

type ensembleModel struct {
	statistic string
	predictor *ml.EnsemblePredictor
}

func (m *ensembleModel) Predict(s ml.Sample) (models.ConfidenceResult, error) {
	fv := &models.FeatureVector{
		PlayerID: s.PlayerID,
		AsOf:     s.Date,
		Version:  features.FeatureSetVersion,
		Features: s.Features,
	}
	risks := ml.RiskFactors{BackToBack: s.Features[features.FeatureBackToBack] == 1}
	res, err := m.predictor.Predict(fv, m.statistic, ml.ContextFor(risks))
	if err != nil {
		return models.ConfidenceResult{}, err
	}
	return res.Prediction, nil
}

// RollingAverageFactory is the naive baseline: the 10-game average with a
// normal 10-90 band from the 10-game standard deviation.
func RollingAverageFactory() Factory {
	return func(ctx context.Context, train *ml.TrainingSet) (Model, error) {
		return rollingAverage{statistic: train.Statistic}, nil
	}
}

type rollingAverage struct {
	statistic string
}

func (r rollingAverage) Predict(s ml.Sample) (models.ConfidenceResult, error) {
	avg, ok := s.Features[features.AvgName(r.statistic, 10)]
	if !ok || features.IsMissing(avg) {
		return models.ConfidenceResult{}, &models.FeatureIncompleteError{
			PlayerID:  s.PlayerID,
			Statistic: r.statistic,
			Missing:   []string{features.AvgName(r.statistic, 10)},
		}
	}
	std := s.Features[features.StdName(r.statistic, 10)]
	if features.IsMissing(std) {
		std = 0
	}
	low := avg - 1.2816*std
	if low < 0 {
		low = 0
	}
	return models.ConfidenceResult{Value: avg, Low: low, High: avg + 1.2816*std, Confidence: 0.5}, nil
}
