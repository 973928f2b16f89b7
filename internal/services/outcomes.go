package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// OutcomeRecorder receives game lines once they are stored, so predictions
// made for those games can be scored against what happened.
type OutcomeRecorder interface {
	ResolveOutcomes(ctx context.Context, lines []models.GameStatLine) int
}

// ResolveOutcomes scores the cached predictions for each line's game
// against the recorded statistics and feeds the result to the predictor's
// accuracy history. A resolved prediction is dropped from the cache so a
// re-ingested game is not counted twice. Returns the number of outcomes
// recorded.
func (s *PredictionService) ResolveOutcomes(ctx context.Context, lines []models.GameStatLine) int {
	resolved := 0
	for _, line := range lines {
		for _, stat := range s.cfg.Statistics {
			actual, ok := line.Stat(stat)
			if !ok {
				continue
			}
			version := s.predictor.ModelVersion(stat)
			if version == "" {
				continue
			}
			key := CacheKey(line.PlayerID, day(line.GameDate), stat, version)
			res, found, err := s.memo.Peek(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return resolved
				}
				s.logger.WithError(err).WithField("key", key).Warn("Failed to read prediction for outcome")
				continue
			}
			if !found {
				continue
			}
			s.predictor.Observe(&res, actual)
			resolved++
			if err := s.memo.Invalidate(ctx, key); err != nil {
				s.logger.WithError(err).WithField("key", key).Debug("Failed to drop resolved prediction")
			}
		}
	}

	if resolved > 0 {
		s.logger.WithFields(logrus.Fields{
			"lines":    len(lines),
			"resolved": resolved,
		}).Info("Prediction outcomes recorded")
	}
	return resolved
}
