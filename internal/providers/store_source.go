package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
)

// poolLookbackDays is how far back a player must have appeared to count as
// active in the local player pool.
const poolLookbackDays = 30

// GameRepository is the read side of the local game store.
type GameRepository interface {
	GameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, error)
	SeasonGames(ctx context.Context, season string) ([]models.GameStatLine, error)
	GamesBetween(ctx context.Context, from, to time.Time) ([]models.GameStatLine, error)
	TeamProfile(ctx context.Context, teamID, season string) (*models.TeamProfile, error)
}

// StoreSource answers every resource from previously ingested data. It is
// the last source in the chain: slow to go stale, never rate limited.
type StoreSource struct {
	name string
	repo GameRepository
}

func NewStoreSource(name string, repo GameRepository) *StoreSource {
	return &StoreSource{name: name, repo: repo}
}

func (s *StoreSource) Name() string {
	return s.name
}

func (s *StoreSource) Fetch(ctx context.Context, req datasource.Request) (json.RawMessage, error) {
	var (
		out interface{}
		err error
	)
	switch req.Resource {
	case datasource.ResourceGameLog:
		out, err = s.gameLog(ctx, req.Params["player_id"], req.Params["season"])
	case datasource.ResourceTeamProfile:
		out, err = s.teamProfile(ctx, req.Params["team_id"], req.Params["season"])
	case datasource.ResourceSchedule:
		out, err = s.schedule(ctx, req.Params["date"])
	case datasource.ResourceSeasonAverages:
		out, err = s.seasonAverages(ctx, req.Params["season"])
	case datasource.ResourcePlayerPool:
		out, err = s.playerPool(ctx, req.Params["date"])
	default:
		return nil, fmt.Errorf("%s %s: %w", s.name, req.Resource, datasource.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (s *StoreSource) notFound(what string) error {
	return &datasource.StatusError{Source: s.name, Code: http.StatusNotFound, Body: what + " not found"}
}

func (s *StoreSource) gameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, error) {
	if playerID == "" {
		return nil, datasource.Permanent(fmt.Errorf("%s game log: player_id is required", s.name))
	}
	lines, err := s.repo.GameLog(ctx, playerID, season)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, s.notFound("game log for player " + playerID)
	}
	return lines, nil
}

func (s *StoreSource) teamProfile(ctx context.Context, teamID, season string) (*models.TeamProfile, error) {
	p, err := s.repo.TeamProfile(ctx, teamID, season)
	if errors.Is(err, ingestion.ErrNotFound) {
		return nil, s.notFound("team profile " + teamID)
	}
	return p, err
}

// schedule is reconstructed from the games already recorded on date.
func (s *StoreSource) schedule(ctx context.Context, date string) ([]models.ScheduledGame, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, datasource.Permanent(fmt.Errorf("%s schedule: invalid date %q", s.name, date))
	}
	lines, err := s.repo.GamesBetween(ctx, day, day)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, s.notFound("schedule for " + date)
	}

	games := make(map[string]*models.ScheduledGame)
	for _, l := range lines {
		g, ok := games[l.GameID]
		if !ok {
			g = &models.ScheduledGame{GameID: l.GameID, GameDate: day}
			games[l.GameID] = g
		}
		if l.IsHome {
			g.HomeTeam, g.AwayTeam = l.Team, l.Opponent
		} else {
			g.HomeTeam, g.AwayTeam = l.Opponent, l.Team
		}
	}

	out := make([]models.ScheduledGame, 0, len(games))
	for _, g := range games {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

func (s *StoreSource) seasonAverages(ctx context.Context, season string) ([]models.StatLine, error) {
	if season == "" {
		return nil, datasource.Permanent(fmt.Errorf("%s season averages: season is required", s.name))
	}
	games, err := s.repo.SeasonGames(ctx, season)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, s.notFound("season " + season)
	}
	return valuation.SeasonLines(games, season), nil
}

// playerPool lists everyone who played in the lookback window before date,
// with team and position from their most recent game.
func (s *StoreSource) playerPool(ctx context.Context, date string) ([]models.PlayerStatus, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, datasource.Permanent(fmt.Errorf("%s player pool: invalid date %q", s.name, date))
	}
	lines, err := s.repo.GamesBetween(ctx, day.AddDate(0, 0, -poolLookbackDays), day.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, s.notFound("player pool for " + date)
	}

	latest := make(map[string]models.GameStatLine)
	for _, l := range lines {
		if prev, ok := latest[l.PlayerID]; !ok || !l.GameDate.Before(prev.GameDate) {
			latest[l.PlayerID] = l
		}
	}

	out := make([]models.PlayerStatus, 0, len(latest))
	for id, l := range latest {
		out = append(out, models.PlayerStatus{
			PlayerID: id,
			Name:     l.PlayerName,
			Team:     l.Team,
			Position: l.Position,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}
