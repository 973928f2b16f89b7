package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/ml"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// DataProvider is the read side of the resilient data client.
type DataProvider interface {
	GameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, datasource.Meta, error)
	TeamProfile(ctx context.Context, teamID, season string) (models.TeamProfile, datasource.Meta, error)
	Schedule(ctx context.Context, date time.Time) ([]models.ScheduledGame, datasource.Meta, error)
	SeasonAverages(ctx context.Context, season string) ([]models.StatLine, datasource.Meta, error)
	PlayerPool(ctx context.Context, date time.Time) ([]models.PlayerStatus, datasource.Meta, error)
}

// playerInputs is everything needed to predict one player on one date.
type playerInputs struct {
	status   models.PlayerStatus
	features *models.FeatureVector
	risks    ml.RiskFactors
	stale    bool
}

// loadInputs gathers the game log, slate status, opponent and features for
// playerID on date. Only the game log is mandatory; missing context leaves
// the corresponding features at the sentinel.
func (s *PredictionService) loadInputs(ctx context.Context, playerID string, date time.Time) (*playerInputs, error) {
	log := logger.WithPlayerContext(s.logger, playerID, date, "")

	history, meta, err := s.data.GameLog(ctx, playerID, s.cfg.Season)
	if err != nil {
		return nil, err
	}
	in := &playerInputs{stale: meta.Stale}

	status, found, stale := s.playerStatus(ctx, playerID, date, log)
	in.stale = in.stale || stale
	if !found {
		status = models.PlayerStatus{PlayerID: playerID}
	}
	if status.Team == "" {
		if last, ok := lastGameBefore(history, date); ok {
			status.Team = last.Team
			if status.Position == "" {
				status.Position = last.Position
			}
		}
	}
	in.status = status

	gc := features.GameContext{
		Team:         status.Team,
		Position:     status.Position,
		SeasonStart:  s.cfg.SeasonStart,
		AllStarBreak: s.cfg.AllStarBreak,
	}

	if status.Team != "" {
		games, meta, err := s.data.Schedule(ctx, date)
		switch {
		case err != nil:
			log.WithError(err).Warn("Schedule unavailable, predicting without opponent context")
		default:
			in.stale = in.stale || meta.Stale
			for _, g := range games {
				opp, home, ok := g.Opponent(status.Team)
				if !ok {
					continue
				}
				gc.IsHome = home
				profile, meta, err := s.data.TeamProfile(ctx, opp, s.cfg.Season)
				if err != nil {
					log.WithError(err).WithField("opponent", opp).Warn("Opponent profile unavailable")
					break
				}
				in.stale = in.stale || meta.Stale
				gc.Opponent = &profile
				in.risks.EliteDefense = profile.LeagueDefRank > 0 && profile.LeagueDefRank <= s.cfg.EliteDefenseRank
				break
			}
		}
	}

	fv, err := s.engineer.Compute(playerID, date, history, gc)
	if err != nil {
		return nil, err
	}
	in.features = fv

	in.risks.InjuryReturn = status.ReturningInjury
	in.risks.NewTeam = status.GamesWithTeam > 0 && status.GamesWithTeam < s.cfg.NewTeamGames
	if last, ok := lastGameBefore(history, date); ok {
		if status.Team != "" && last.Team != "" && last.Team != status.Team {
			in.risks.NewTeam = true
		}
	}
	in.risks.BackToBack = fv.Features[features.FeatureBackToBack] == 1
	return in, nil
}

// playerStatus looks playerID up in the slate's player pool.
func (s *PredictionService) playerStatus(ctx context.Context, playerID string, date time.Time, log *logrus.Entry) (models.PlayerStatus, bool, bool) {
	pool, meta, err := s.data.PlayerPool(ctx, date)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Player pool unavailable, using game log for team")
		}
		return models.PlayerStatus{}, false, false
	}
	for _, p := range pool {
		if p.PlayerID == playerID {
			return p, true, meta.Stale
		}
	}
	return models.PlayerStatus{}, false, meta.Stale
}

func lastGameBefore(history []models.GameStatLine, date time.Time) (models.GameStatLine, bool) {
	var last models.GameStatLine
	found := false
	for _, g := range history {
		if !g.GameDate.Before(date) {
			continue
		}
		if !found || g.GameDate.After(last.GameDate) {
			last, found = g, true
		}
	}
	return last, found
}
