package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// RankingService values players by category z-scores against a cached
// season population.
type RankingService struct {
	data     DataProvider
	season   string
	minGames int
	logger   *logrus.Entry

	mu          sync.RWMutex
	lines       []models.StatLine
	population  models.PopulationStats
	refreshedAt time.Time
}

func NewRankingService(data DataProvider, season string, minGames int, log *logrus.Logger) *RankingService {
	return &RankingService{
		data:     data,
		season:   season,
		minGames: minGames,
		logger:   logger.WithComponent(log, "ranking_service"),
	}
}

// RefreshPopulation reloads season averages and rebuilds the default
// 9-category population snapshot.
func (s *RankingService) RefreshPopulation(ctx context.Context) error {
	lines, meta, err := s.data.SeasonAverages(ctx, s.season)
	if err != nil {
		return fmt.Errorf("failed to load season averages: %w", err)
	}
	pop := valuation.BuildPopulation(lines, valuation.NineCategory(), s.season, s.minGames)

	s.mu.Lock()
	s.lines = lines
	s.population = pop
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"season":  s.season,
		"players": len(lines),
		"cohort":  pop.Size,
		"source":  meta.Source,
		"stale":   meta.Stale,
	}).Info("Valuation population refreshed")
	return nil
}

// Population returns the current snapshot, loading it on first use.
func (s *RankingService) Population(ctx context.Context) (models.PopulationStats, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.PopulationStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.population, nil
}

// Rank scores every season line under format. The population is rebuilt
// for the format's categories from the cached lines.
func (s *RankingService) Rank(ctx context.Context, format valuation.FormatSettings) ([]models.ZScoreProfile, error) {
	if len(format.Categories) == 0 {
		return nil, fmt.Errorf("format %q has no categories", format.Name)
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	lines := s.lines
	s.mu.RUnlock()

	pop := valuation.BuildPopulation(lines, format, s.season, s.minGames)
	return valuation.Rank(lines, pop, format), nil
}

func (s *RankingService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := !s.refreshedAt.IsZero()
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.RefreshPopulation(ctx)
}
