package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// GameHistory is the stored game log the trainer learns from.
type GameHistory interface {
	SeasonGames(ctx context.Context, season string) ([]models.GameStatLine, error)
	TeamProfile(ctx context.Context, teamID, season string) (*models.TeamProfile, error)
}

type TrainingConfig struct {
	Season       string
	SeasonStart  time.Time
	AllStarBreak time.Time
	Statistics   []string
	WindowDays   int
	Train        ml.TrainConfig
}

// TrainingService fits models from stored history, records them in the
// registry and installs them into the live predictor.
type TrainingService struct {
	games     GameHistory
	engineer  *features.Engineer
	artifacts ml.ArtifactStore
	predictor *ml.EnsemblePredictor
	cfg       TrainingConfig
	logger    *logrus.Entry
}

func NewTrainingService(games GameHistory, engineer *features.Engineer, artifacts ml.ArtifactStore, predictor *ml.EnsemblePredictor, cfg TrainingConfig, log *logrus.Logger) *TrainingService {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 60
	}
	if len(cfg.Statistics) == 0 {
		cfg.Statistics = DefaultServiceConfig().Statistics
	}
	return &TrainingService{
		games:     games,
		engineer:  engineer,
		artifacts: artifacts,
		predictor: predictor,
		cfg:       cfg,
		logger:    logger.WithComponent(log, "training_service"),
	}
}

// LoadProduction swaps the predictor over to the registry's production
// models.
func (s *TrainingService) LoadProduction(ctx context.Context) error {
	reg, err := s.artifacts.LoadProduction(ctx)
	if err != nil {
		return err
	}
	s.predictor.Swap(reg)
	return nil
}

// TrainingSet builds samples for stat from games dated in [from, to].
func (s *TrainingService) TrainingSet(ctx context.Context, stat string, from, to time.Time) (*ml.TrainingSet, error) {
	games, err := s.games.SeasonGames(ctx, s.cfg.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to load season games: %w", err)
	}
	return ml.BuildTrainingSet(ctx, s.engineer, games, stat, from, to, s.contextFunc(ctx))
}

// Retrain fits every configured statistic on the window ending the day
// before asOf and promotes each new model to production. A statistic that
// fails to train keeps its current model.
func (s *TrainingService) Retrain(ctx context.Context, asOf time.Time) ([]models.ModelRegistryEntry, error) {
	games, err := s.games.SeasonGames(ctx, s.cfg.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to load season games: %w", err)
	}
	to := day(asOf).AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -s.cfg.WindowDays)
	contextFor := s.contextFunc(ctx)

	var entries []models.ModelRegistryEntry
	var errs []error
	for _, stat := range s.cfg.Statistics {
		log := s.logger.WithField("statistic", stat)

		set, err := ml.BuildTrainingSet(ctx, s.engineer, games, stat, from, to, contextFor)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stat, err))
			continue
		}
		m, err := ml.Train(ctx, set, s.cfg.Train)
		if err != nil {
			log.WithError(err).WithField("samples", set.Len()).Warn("Training failed, keeping current model")
			errs = append(errs, fmt.Errorf("%s: %w", stat, err))
			continue
		}
		entry, err := s.artifacts.Save(ctx, m, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stat, err))
			continue
		}
		s.predictor.Install(m)
		entries = append(entries, *entry)

		log.WithFields(logrus.Fields{
			"version":    m.Version,
			"samples":    m.TrainSamples,
			"gbm_weight": m.GBMWeight,
		}).Info("Model retrained and promoted")
	}

	if len(entries) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

// contextFunc gives each historical game its game context, with the
// opponent's stored profile when one exists.
func (s *TrainingService) contextFunc(ctx context.Context) ml.ContextFunc {
	profiles := make(map[string]*models.TeamProfile)
	return func(g models.GameStatLine) features.GameContext {
		gc := features.GameContext{
			Team:         g.Team,
			Position:     g.Position,
			IsHome:       g.IsHome,
			SeasonStart:  s.cfg.SeasonStart,
			AllStarBreak: s.cfg.AllStarBreak,
		}
		p, seen := profiles[g.Opponent]
		if !seen {
			var err error
			p, err = s.games.TeamProfile(ctx, g.Opponent, s.cfg.Season)
			if err != nil && !errors.Is(err, ingestion.ErrNotFound) {
				s.logger.WithError(err).WithField("team", g.Opponent).Debug("Opponent profile lookup failed")
			}
			profiles[g.Opponent] = p
		}
		gc.Opponent = p
		return gc
	}
}
