package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stitts-dev/nba-projections/internal/models"
)

const dateLayout = "2006-01-02"

// Meta describes where a typed result came from.
type Meta struct {
	Source    string
	Stale     bool
	FetchedAt time.Time
}

func fetchInto[T any](ctx context.Context, c *Client, req Request) (T, Meta, error) {
	var out T
	res, err := c.Fetch(ctx, req)
	if err != nil {
		return out, Meta{}, err
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return out, Meta{}, fmt.Errorf("decode %s from %s: %w", req.Resource, res.Source, ErrMalformedResponse)
	}
	return out, Meta{Source: res.Source, Stale: res.Stale, FetchedAt: res.FetchedAt}, nil
}

// GameLog returns every recorded game for a player in a season.
func (c *Client) GameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, Meta, error) {
	return fetchInto[[]models.GameStatLine](ctx, c, Request{
		Resource: ResourceGameLog,
		Params:   map[string]string{"player_id": playerID, "season": season},
	})
}

// TeamProfile returns a team's defensive rating, pace and defense-vs-position.
func (c *Client) TeamProfile(ctx context.Context, teamID, season string) (models.TeamProfile, Meta, error) {
	return fetchInto[models.TeamProfile](ctx, c, Request{
		Resource: ResourceTeamProfile,
		Params:   map[string]string{"team_id": teamID, "season": season},
	})
}

// Schedule returns the games scheduled on date.
func (c *Client) Schedule(ctx context.Context, date time.Time) ([]models.ScheduledGame, Meta, error) {
	return fetchInto[[]models.ScheduledGame](ctx, c, Request{
		Resource: ResourceSchedule,
		Params:   map[string]string{"date": date.Format(dateLayout)},
	})
}

// SeasonAverages returns per-player season aggregate lines.
func (c *Client) SeasonAverages(ctx context.Context, season string) ([]models.StatLine, Meta, error) {
	return fetchInto[[]models.StatLine](ctx, c, Request{
		Resource: ResourceSeasonAverages,
		Params:   map[string]string{"season": season},
	})
}

// PlayerPool returns the active players and their situational status on date.
func (c *Client) PlayerPool(ctx context.Context, date time.Time) ([]models.PlayerStatus, Meta, error) {
	return fetchInto[[]models.PlayerStatus](ctx, c, Request{
		Resource: ResourcePlayerPool,
		Params:   map[string]string{"date": date.Format(dateLayout)},
	})
}
