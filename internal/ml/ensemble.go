package ml

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

const maxFactors = 5

// Degraded reasons attached to ensemble results
const (
	ReasonAccuracyHistory = "insufficient_accuracy_history"
	ReasonRiskContext     = "elevated_risk_context"
)

// EnsemblePredictor combines the base models of the current Registry. The
// registry is swapped atomically; a prediction always sees one consistent
// set of models.
type EnsemblePredictor struct {
	registry   atomic.Pointer[Registry]
	confidence *ConfidenceCalculator
	seeded     sync.Map // stat+"@"+version
	logger     *logrus.Entry
	now        func() time.Time
}

func NewEnsemblePredictor(reg *Registry, confidence *ConfidenceCalculator, log *logrus.Logger) *EnsemblePredictor {
	if reg == nil {
		reg = NewRegistry()
	}
	if confidence == nil {
		confidence = NewConfidenceCalculator(nil)
	}
	p := &EnsemblePredictor{
		confidence: confidence,
		logger:     logger.WithComponent(log, "ensemble"),
		now:        time.Now,
	}
	p.registry.Store(reg)
	p.seed(reg)
	return p
}

// Registry returns the registry predictions are currently served from.
func (p *EnsemblePredictor) Registry() *Registry {
	return p.registry.Load()
}

// Swap installs reg and returns the previous registry. Holdout outcomes of
// models not seen before are fed to the accuracy tracker.
func (p *EnsemblePredictor) Swap(reg *Registry) *Registry {
	old := p.registry.Swap(reg)
	p.seed(reg)
	p.logger.WithField("statistics", reg.Statistics()).Info("Model registry swapped")
	return old
}

// Install adds or replaces one model, copy-on-write. Concurrent installs
// retry until their swap wins.
func (p *EnsemblePredictor) Install(m *StatModel) {
	for {
		cur := p.registry.Load()
		if p.registry.CompareAndSwap(cur, cur.With(m)) {
			p.seed(NewRegistry(m))
			return
		}
	}
}

// seed records the holdout outcomes of each model once per version.
func (p *EnsemblePredictor) seed(reg *Registry) {
	tracker := p.confidence.Tracker()
	for _, stat := range reg.Statistics() {
		m, _ := reg.Get(stat)
		if len(m.Holdout) == 0 {
			continue
		}
		if _, done := p.seeded.LoadOrStore(stat+"@"+m.Version, struct{}{}); done {
			continue
		}
		for _, o := range m.Holdout {
			tracker.Record(o.PlayerID, stat, o.Low, o.High, o.Actual)
		}
		p.logger.WithFields(logrus.Fields{
			"statistic": stat,
			"version":   m.Version,
			"outcomes":  len(m.Holdout),
		}).Debug("Seeded accuracy history from holdout")
	}
}

// ModelVersion returns the loaded version for stat, empty if none.
func (p *EnsemblePredictor) ModelVersion(stat string) string {
	return p.registry.Load().Version(stat)
}

// Predict produces the combined prediction for one statistic.
func (p *EnsemblePredictor) Predict(fv *models.FeatureVector, stat string, ctx Context) (*models.EnsembleResult, error) {
	if !models.IsTrackedStatistic(stat) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, stat)
	}
	reg := p.registry.Load()
	m, ok := reg.Get(stat)
	if !ok {
		return nil, fmt.Errorf("%w: no trained model for %s", models.ErrModelUnavailable, stat)
	}
	if fv == nil {
		return nil, &models.FeatureIncompleteError{Statistic: stat, Missing: features.RequiredFor(stat)}
	}
	if missing := missingFeatures(fv.Features, features.RequiredFor(stat)); len(missing) > 0 {
		return nil, &models.FeatureIncompleteError{PlayerID: fv.PlayerID, Statistic: stat, Missing: missing}
	}

	profile, err := m.profileWeights(ctx)
	if err != nil {
		return nil, err
	}

	base := []models.BasePrediction{
		m.GBM.Predict(fv.Features),
		m.Sequence.Predict(fv.Features),
	}
	cal := p.confidence.Calibrate(base, []float64{profile.GBM, profile.Sequence}, fv.PlayerID, ctx.Risks)

	res := &models.EnsembleResult{
		PlayerID:     fv.PlayerID,
		GameDate:     fv.AsOf,
		Statistic:    stat,
		ModelVersion: m.Version,
		Prediction:   cal.Result,
		Base:         base,
		Profile:      profile.Name,
		Weights: map[string]float64{
			string(models.ModelKindQuantileGBM): profile.GBM,
			string(models.ModelKindSequence):    profile.Sequence,
		},
		Factors:       m.Sequence.Factors(fv.Features, maxFactors),
		SeasonAverage: fv.Features[features.AvgName(stat, 30)],
		ComputedAt:    p.now().UTC(),
	}
	if cal.HistoryInsufficient {
		res.DegradedReasons = append(res.DegradedReasons, ReasonAccuracyHistory)
	}
	if cal.Multiplier > 1 {
		res.DegradedReasons = append(res.DegradedReasons, ReasonRiskContext)
	}
	res.Degraded = len(res.DegradedReasons) > 0

	p.logger.WithFields(logrus.Fields{
		"player_id":  fv.PlayerID,
		"statistic":  stat,
		"profile":    profile.Name,
		"point":      cal.Result.Value,
		"confidence": cal.Result.Confidence,
	}).Debug("Ensemble prediction")
	return res, nil
}

// BatchItem is one PredictBatch input.
type BatchItem struct {
	Features  *models.FeatureVector
	Statistic string
	Context   Context
}

// BatchResult pairs a result with its error; exactly one is set.
type BatchResult struct {
	Result *models.EnsembleResult
	Err    error
}

// PredictBatch predicts every item over at most workers goroutines and
// returns results in input order. Per-item errors do not stop the batch.
func (p *EnsemblePredictor) PredictBatch(ctx context.Context, items []BatchItem, workers int) []BatchResult {
	out := make([]BatchResult, len(items))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = BatchResult{Err: err}
				return nil
			}
			res, err := p.Predict(items[i].Features, items[i].Statistic, items[i].Context)
			out[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Observe feeds a resolved outcome back into the accuracy tracker. Later
// predictions for the player use the updated hit rate.
func (p *EnsemblePredictor) Observe(res *models.EnsembleResult, actual float64) {
	if res == nil {
		return
	}
	p.confidence.Tracker().Record(res.PlayerID, res.Statistic, res.Prediction.Low, res.Prediction.High, actual)
}
