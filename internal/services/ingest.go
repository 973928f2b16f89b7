package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// ProfileWriter persists opponent team profiles.
type ProfileWriter interface {
	SaveTeamProfile(ctx context.Context, p models.TeamProfile) error
}

// IngestionService pulls game logs for a slate's players through the data
// client and writes them through the validating ingestor. Fetches run in
// parallel; the store sees one writer.
type IngestionService struct {
	data     DataProvider
	ingestor *ingestion.Ingestor
	profiles ProfileWriter
	outcomes OutcomeRecorder
	season   string
	workers  int
	logger   *logrus.Entry
}

func NewIngestionService(data DataProvider, ingestor *ingestion.Ingestor, profiles ProfileWriter, season string, workers int, log *logrus.Logger) *IngestionService {
	if workers <= 0 {
		workers = 4
	}
	return &IngestionService{
		data:     data,
		ingestor: ingestor,
		profiles: profiles,
		season:   season,
		workers:  workers,
		logger:   logger.WithComponent(log, "ingestion_service"),
	}
}

// SetOutcomeRecorder attaches the recorder that scores stored games against
// earlier predictions; nil disables it.
func (s *IngestionService) SetOutcomeRecorder(r OutcomeRecorder) {
	s.outcomes = r
}

// IngestDate refreshes the game logs of every player in the pool for date
// and the profiles of the teams scheduled that day.
func (s *IngestionService) IngestDate(ctx context.Context, date time.Time) (ingestion.Report, error) {
	pool, _, err := s.data.PlayerPool(ctx, date)
	if err != nil {
		return ingestion.Report{}, fmt.Errorf("failed to load player pool: %w", err)
	}
	ids := make([]string, len(pool))
	for i, p := range pool {
		ids[i] = p.PlayerID
	}

	report, err := s.IngestPlayers(ctx, ids)
	if err != nil {
		return report, err
	}

	if s.profiles != nil {
		s.refreshProfiles(ctx, date)
	}
	return report, nil
}

// IngestPlayers fetches and stores the season game log of each player.
// Players whose log cannot be fetched are counted as errors and skipped.
func (s *IngestionService) IngestPlayers(ctx context.Context, playerIDs []string) (ingestion.Report, error) {
	var (
		mu        sync.Mutex
		lines     []models.GameStatLine
		fetchErrs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range playerIDs {
		id := id
		g.Go(func() error {
			games, _, err := s.data.GameLog(gctx, id, s.season)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", id, err))
				return nil
			}
			lines = append(lines, games...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ingestion.Report{}, err
	}

	report, err := s.ingestor.Ingest(ctx, lines)
	report.Errors = append(report.Errors, fetchErrs...)
	if err != nil {
		return report, err
	}

	resolved := 0
	if s.outcomes != nil {
		resolved = s.outcomes.ResolveOutcomes(ctx, report.Lines)
	}

	s.logger.WithFields(logrus.Fields{
		"players":        len(playerIDs),
		"fetch_failures": len(fetchErrs),
		"accepted":       report.Accepted,
		"rejected":       report.Rejected,
		"outcomes":       resolved,
	}).Info("Player game logs ingested")
	return report, nil
}

func (s *IngestionService) refreshProfiles(ctx context.Context, date time.Time) {
	games, _, err := s.data.Schedule(ctx, date)
	if err != nil {
		s.logger.WithError(err).Warn("Schedule unavailable, team profiles not refreshed")
		return
	}
	for _, g := range games {
		for _, team := range []string{g.HomeTeam, g.AwayTeam} {
			p, _, err := s.data.TeamProfile(ctx, team, s.season)
			if err != nil {
				s.logger.WithError(err).WithField("team", team).Debug("Team profile unavailable")
				continue
			}
			if err := s.profiles.SaveTeamProfile(ctx, p); err != nil {
				s.logger.WithError(err).WithField("team", team).Warn("Failed to save team profile")
			}
		}
	}
}
