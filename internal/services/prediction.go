package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
	"github.com/stitts-dev/nba-projections/pkg/cache"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

const dateLayout = "2006-01-02"

// ReasonStaleData marks predictions computed from data served past its TTL.
const ReasonStaleData = "stale_source_data"

// Predictor serves ensemble predictions from the current model registry.
type Predictor interface {
	Predict(fv *models.FeatureVector, stat string, ctx ml.Context) (*models.EnsembleResult, error)
	ModelVersion(stat string) string
	Observe(res *models.EnsembleResult, actual float64)
}

// Publisher fans a computed daily slate out to subscribers.
type Publisher interface {
	PublishSlate(ctx context.Context, date time.Time, slate []*models.PlayerPrediction) error
}

type ServiceConfig struct {
	Season            string
	SeasonStart       time.Time
	AllStarBreak      time.Time
	Statistics        []string
	CacheTTL          time.Duration
	Workers           int
	BreakoutThreshold float64
	// EliteDefenseRank is the worst league defensive rank still treated as
	// an elite defense.
	EliteDefenseRank int
	// NewTeamGames is the number of games with a team below which a player
	// counts as new to it.
	NewTeamGames int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Statistics:        []string{models.StatPoints, models.StatRebounds, models.StatAssists, models.StatFantasyPoints},
		CacheTTL:          4 * time.Hour,
		Workers:           runtime.NumCPU(),
		BreakoutThreshold: 0.20,
		EliteDefenseRank:  5,
		NewTeamGames:      10,
	}
}

// DailyFilters narrows GetDaily. Zero values match everything.
type DailyFilters struct {
	Team          string
	Position      string
	Statistic     string
	MinConfidence float64
}

func (f DailyFilters) empty() bool {
	return f == DailyFilters{}
}

// TopCriteria selects what GetTop ranks.
type TopCriteria struct {
	Date      time.Time
	Statistic string
	Position  string
}

// RankedPrediction is one row of a GetTop ranking.
type RankedPrediction struct {
	Rank     int                    `json:"rank"`
	PlayerID string                 `json:"player_id"`
	Name     string                 `json:"name,omitempty"`
	Team     string                 `json:"team,omitempty"`
	Position string                 `json:"position,omitempty"`
	Result   *models.EnsembleResult `json:"prediction"`
}

// PredictionService answers prediction queries: it loads data through the
// resilient client, derives features, runs the ensemble and caches results
// keyed by model version.
type PredictionService struct {
	data      DataProvider
	predictor Predictor
	engineer  *features.Engineer
	memo      *cache.Memo[models.EnsembleResult]
	publisher Publisher
	cfg       ServiceConfig
	logger    *logrus.Entry
	metrics   *metrics.Manager
}

func NewPredictionService(data DataProvider, predictor Predictor, engineer *features.Engineer, store cache.Store, cfg ServiceConfig, log *logrus.Logger, m *metrics.Manager) *PredictionService {
	def := DefaultServiceConfig()
	if len(cfg.Statistics) == 0 {
		cfg.Statistics = def.Statistics
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BreakoutThreshold <= 0 {
		cfg.BreakoutThreshold = def.BreakoutThreshold
	}
	if cfg.EliteDefenseRank <= 0 {
		cfg.EliteDefenseRank = def.EliteDefenseRank
	}
	if cfg.NewTeamGames <= 0 {
		cfg.NewTeamGames = def.NewTeamGames
	}
	return &PredictionService{
		data:      data,
		predictor: predictor,
		engineer:  engineer,
		memo:      cache.NewMemo[models.EnsembleResult]("prediction", store, cfg.CacheTTL, log, m),
		cfg:       cfg,
		logger:    logger.WithComponent(log, "prediction_service"),
		metrics:   m,
	}
}

// SetPublisher attaches a slate publisher; nil disables publishing.
func (s *PredictionService) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *PredictionService) Statistics() []string {
	return append([]string(nil), s.cfg.Statistics...)
}

// CacheKey is the prediction cache key. The model version is part of the
// key so a registry swap never serves predictions from the previous model.
func CacheKey(playerID string, date time.Time, stat, modelVersion string) string {
	return fmt.Sprintf("prediction:%s:%s:%s:%s", playerID, date.Format(dateLayout), stat, modelVersion)
}

// PredictStat predicts one statistic for a player's game on date.
func (s *PredictionService) PredictStat(ctx context.Context, playerID string, date time.Time, stat string) (*models.EnsembleResult, error) {
	load := s.inputLoader(ctx, playerID, date)
	return s.predict(ctx, playerID, date, stat, load)
}

// GetPrediction predicts every configured statistic for a player. Inputs
// are loaded at most once. Per-statistic failures are reported in Errors;
// the call fails only when no statistic could be predicted.
func (s *PredictionService) GetPrediction(ctx context.Context, playerID string, date time.Time) (*models.PlayerPrediction, error) {
	return s.predictPlayer(ctx, playerID, date, s.cfg.Statistics)
}

func (s *PredictionService) predictPlayer(ctx context.Context, playerID string, date time.Time, stats []string) (*models.PlayerPrediction, error) {
	date = day(date)
	load := s.inputLoader(ctx, playerID, date)
	out := &models.PlayerPrediction{
		PlayerID:    playerID,
		GameDate:    date,
		Predictions: make(map[string]*models.EnsembleResult, len(stats)),
	}

	var firstErr error
	for _, stat := range stats {
		res, err := s.predict(ctx, playerID, date, stat, load)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
			if out.Errors == nil {
				out.Errors = make(map[string]string)
			}
			out.Errors[stat] = err.Error()
			continue
		}
		out.Predictions[stat] = res
		out.Degraded = out.Degraded || res.Degraded
	}
	if len(out.Predictions) == 0 && firstErr != nil {
		return nil, firstErr
	}

	if in, ok := load.loaded(); ok {
		out.Name = in.status.Name
		out.Team = in.status.Team
		out.Position = in.status.Position
	}
	return out, nil
}

// lazyInputs loads a player's inputs at most once, and only when some
// statistic misses the cache.
type lazyInputs struct {
	once sync.Once
	load func() (*playerInputs, error)
	in   *playerInputs
	err  error
	done atomic.Bool
}

func (l *lazyInputs) get() (*playerInputs, error) {
	l.once.Do(func() {
		l.in, l.err = l.load()
		l.done.Store(true)
	})
	return l.in, l.err
}

// loaded returns the inputs if a load already succeeded.
func (l *lazyInputs) loaded() (*playerInputs, bool) {
	if !l.done.Load() || l.err != nil {
		return nil, false
	}
	return l.in, true
}

// inputLoader runs detached from the caller's cancellation like the cached
// computation it feeds.
func (s *PredictionService) inputLoader(ctx context.Context, playerID string, date time.Time) *lazyInputs {
	detached := context.WithoutCancel(ctx)
	return &lazyInputs{load: func() (*playerInputs, error) {
		return s.loadInputs(detached, playerID, day(date))
	}}
}

func (s *PredictionService) predict(ctx context.Context, playerID string, date time.Time, stat string, load *lazyInputs) (*models.EnsembleResult, error) {
	if !models.IsTrackedStatistic(stat) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, stat)
	}
	version := s.predictor.ModelVersion(stat)
	if version == "" {
		return nil, fmt.Errorf("%w: no trained model for %s", models.ErrModelUnavailable, stat)
	}

	start := time.Now()
	key := CacheKey(playerID, day(date), stat, version)
	res, hit, err := s.memo.Get(ctx, key, func(ctx context.Context) (models.EnsembleResult, error) {
		in, err := load.get()
		if err != nil {
			return models.EnsembleResult{}, err
		}
		r, err := s.predictor.Predict(in.features, stat, ml.ContextFor(in.risks))
		if err != nil {
			return models.EnsembleResult{}, err
		}
		if in.stale {
			r.Stale = true
			r.DegradedReasons = append(r.DegradedReasons, ReasonStaleData)
			r.Degraded = true
		}
		for _, reason := range r.DegradedReasons {
			s.metrics.RecordDegraded(reason)
		}
		return *r, nil
	})
	if err != nil {
		s.metrics.RecordPrediction(stat, outcome(err), time.Since(start))
		return nil, err
	}

	status := "computed"
	if hit {
		status = "cached"
	}
	s.metrics.RecordPrediction(stat, status, time.Since(start))
	return &res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrFeatureIncomplete):
		return "feature_incomplete"
	case errors.Is(err, models.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, models.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

// GetDaily predicts every player on the slate for date, in player pool
// order. Players whose team does not play are left out when the schedule
// is known. Players that cannot be predicted are skipped and logged.
func (s *PredictionService) GetDaily(ctx context.Context, date time.Time, filters DailyFilters) ([]*models.PlayerPrediction, error) {
	date = day(date)
	stats := s.cfg.Statistics
	if filters.Statistic != "" {
		if !models.IsTrackedStatistic(filters.Statistic) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, filters.Statistic)
		}
		stats = []string{filters.Statistic}
	}

	players, err := s.slate(ctx, date, filters)
	if err != nil {
		return nil, err
	}

	results := make([]*models.PlayerPrediction, len(players))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range players {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := players[i]
			pred, err := s.predictPlayer(gctx, p.PlayerID, date, stats)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WithError(err).WithField("player_id", p.PlayerID).Debug("Skipping player in daily slate")
				return nil
			}
			if pred.Name == "" {
				pred.Name = p.Name
			}
			applyConfidenceFloor(pred, filters.MinConfidence)
			if len(pred.Predictions) > 0 {
				results[i] = pred
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*models.PlayerPrediction, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"game_date": date.Format(dateLayout),
		"players":   len(players),
		"predicted": len(out),
	}).Info("Daily predictions computed")

	if s.publisher != nil && filters.empty() && len(out) > 0 {
		if err := s.publisher.PublishSlate(ctx, date, out); err != nil {
			s.logger.WithError(err).Warn("Failed to publish daily slate")
		}
	}
	return out, nil
}

func applyConfidenceFloor(pred *models.PlayerPrediction, floor float64) {
	if floor <= 0 {
		return
	}
	for stat, r := range pred.Predictions {
		if r.Prediction.Confidence < floor {
			delete(pred.Predictions, stat)
		}
	}
}

// slate returns the players active on date that pass the filters.
func (s *PredictionService) slate(ctx context.Context, date time.Time, filters DailyFilters) ([]models.PlayerStatus, error) {
	pool, _, err := s.data.PlayerPool(ctx, date)
	if err != nil {
		return nil, err
	}

	var playing map[string]bool
	if games, _, err := s.data.Schedule(ctx, date); err != nil {
		s.logger.WithError(err).Warn("Schedule unavailable, predicting whole player pool")
	} else if len(games) > 0 {
		playing = make(map[string]bool, 2*len(games))
		for _, g := range games {
			playing[g.HomeTeam] = true
			playing[g.AwayTeam] = true
		}
	}

	out := make([]models.PlayerStatus, 0, len(pool))
	for _, p := range pool {
		if playing != nil && !playing[p.Team] {
			continue
		}
		if filters.Team != "" && p.Team != filters.Team {
			continue
		}
		if filters.Position != "" && p.Position != filters.Position {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// GetTop ranks the slate by predicted value of one statistic, highest
// first, ties by player id.
func (s *PredictionService) GetTop(ctx context.Context, n int, criteria TopCriteria) ([]RankedPrediction, error) {
	stat := criteria.Statistic
	if stat == "" {
		stat = models.StatFantasyPoints
	}
	daily, err := s.GetDaily(ctx, criteria.Date, DailyFilters{Statistic: stat, Position: criteria.Position})
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedPrediction, 0, len(daily))
	for _, p := range daily {
		r, ok := p.Predictions[stat]
		if !ok {
			continue
		}
		ranked = append(ranked, RankedPrediction{PlayerID: p.PlayerID, Name: p.Name, Team: p.Team, Position: p.Position, Result: r})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Result.Prediction.Value, ranked[j].Result.Prediction.Value
		if a != b {
			return a > b
		}
		return ranked[i].PlayerID < ranked[j].PlayerID
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, nil
}

// GetBreakouts finds projections above the player's 30-game average by more
// than thresholdPct (a fraction; <= 0 uses the configured default), sorted
// by the size of the jump.
func (s *PredictionService) GetBreakouts(ctx context.Context, date time.Time, thresholdPct float64) ([]models.Breakout, error) {
	if thresholdPct <= 0 {
		thresholdPct = s.cfg.BreakoutThreshold
	}
	daily, err := s.GetDaily(ctx, date, DailyFilters{})
	if err != nil {
		return nil, err
	}

	var out []models.Breakout
	for _, p := range daily {
		for _, stat := range s.cfg.Statistics {
			r, ok := p.Predictions[stat]
			if !ok {
				continue
			}
			if b, ok := breakout(p, r, thresholdPct); ok {
				out = append(out, b)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeltaPct != out[j].DeltaPct {
			return out[i].DeltaPct > out[j].DeltaPct
		}
		if out[i].PlayerID != out[j].PlayerID {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].Statistic < out[j].Statistic
	})
	return out, nil
}

// breakout reports whether r clears avg*(1+threshold), compared in decimal
// so 23 * 1.2 is exactly 27.6. The comparison is strict and needs a
// positive average.
func breakout(p *models.PlayerPrediction, r *models.EnsembleResult, threshold float64) (models.Breakout, bool) {
	avg := r.SeasonAverage
	if avg <= 0 || features.IsMissing(avg) {
		return models.Breakout{}, false
	}
	point := r.Prediction.Value
	line := decimal.NewFromFloat(avg).Mul(decimal.NewFromFloat(1 + threshold))
	if !decimal.NewFromFloat(point).GreaterThan(line) {
		return models.Breakout{}, false
	}
	return models.Breakout{
		PlayerID:      p.PlayerID,
		Name:          p.Name,
		Statistic:     r.Statistic,
		Predicted:     point,
		SeasonAverage: avg,
		DeltaPct:      valuation.Round2((point - avg) / avg * 100),
		Confidence:    r.Prediction.Confidence,
	}, true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
