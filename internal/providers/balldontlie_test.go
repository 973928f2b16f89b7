package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

const statsPage1 = `{
  "data": [{
    "id": 1,
    "player": {"id": 237, "first_name": "LeBron", "last_name": "James", "position": "F"},
    "game": {"id": 9001, "date": "2025-01-10T00:00:00.000Z", "season": 2024, "home_team_id": 14, "visitor_team_id": 2},
    "team": {"id": 14, "abbreviation": "LAL"},
    "min": "35:30", "pts": 28, "oreb": 1, "dreb": 7, "reb": 8, "ast": 9, "stl": 1, "blk": 1,
    "turnover": 4, "pf": 2, "fgm": 11, "fga": 20, "fg3m": 2, "fg3a": 6, "ftm": 4, "fta": 5
  }],
  "meta": {"next_cursor": 55, "per_page": 100}
}`

const statsPage2 = `{
  "data": [{
    "id": 2,
    "player": {"id": 237, "first_name": "LeBron", "last_name": "James", "position": "F"},
    "game": {"id": 9002, "date": "2025-01-12", "season": 2024, "home_team_id": 2, "visitor_team_id": 14},
    "team": {"id": 14, "abbreviation": "LAL"},
    "min": "31", "pts": 22, "reb": 6, "ast": 7, "stl": 0, "blk": 0,
    "turnover": 2, "pf": 1, "fgm": 9, "fga": 17, "fg3m": 1, "fg3a": 4, "ftm": 3, "fta": 3
  }, {
    "id": 3,
    "player": {"id": 237, "first_name": "LeBron", "last_name": "James", "position": "F"},
    "game": {"id": 9003, "date": "2025-01-14", "season": 2024, "home_team_id": 14, "visitor_team_id": 5},
    "team": {"id": 14, "abbreviation": "LAL"},
    "min": "00", "pts": 0, "reb": 0, "ast": 0
  }],
  "meta": {"next_cursor": null, "per_page": 100}
}`

func newTestSource(url string) *BallDontLieSource {
	return NewBallDontLieSource("primary", url, "test-key", time.Second, logger.NewDiscardLogger())
}

func TestBallDontLieGameLogPaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/stats", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "237", r.URL.Query().Get("player_ids[]"))
		assert.Equal(t, "2024", r.URL.Query().Get("seasons[]"))
		if r.URL.Query().Get("cursor") == "55" {
			w.Write([]byte(statsPage2))
			return
		}
		w.Write([]byte(statsPage1))
	}))
	defer srv.Close()

	raw, err := newTestSource(srv.URL).Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourceGameLog,
		Params:   map[string]string{"player_id": "237", "season": "2024-25"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	var lines []models.GameStatLine
	require.NoError(t, json.Unmarshal(raw, &lines))
	require.Len(t, lines, 2, "did-not-play rows are dropped")

	first := lines[0]
	assert.Equal(t, "237", first.PlayerID)
	assert.Equal(t, "9001", first.GameID)
	assert.Equal(t, "LeBron James", first.PlayerName)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), first.GameDate)
	assert.Equal(t, "2024-25", first.Season)
	assert.Equal(t, "14", first.Team)
	assert.Equal(t, "2", first.Opponent)
	assert.True(t, first.IsHome)
	assert.InDelta(t, 35.5, first.Minutes, 1e-9)
	assert.InDelta(t, 53.1, first.FantasyPoints, 1e-9)

	second := lines[1]
	assert.False(t, second.IsHome)
	assert.Equal(t, "2", second.Opponent)
	assert.Equal(t, 31.0, second.Minutes)
}

func TestBallDontLieStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL).Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourceSchedule,
		Params:   map[string]string{"date": "2025-01-15"},
	})
	require.Error(t, err)

	var status *datasource.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.True(t, datasource.IsRetryable(err))
}

func TestBallDontLieMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()

	_, err := newTestSource(srv.URL).Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourcePlayerPool,
		Params:   map[string]string{"date": "2025-01-15"},
	})
	assert.ErrorIs(t, err, datasource.ErrMalformedResponse)
	assert.False(t, datasource.IsRetryable(err))
}

func TestBallDontLieTeamProfileUnsupported(t *testing.T) {
	_, err := newTestSource("http://unused.invalid").Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourceTeamProfile,
		Params:   map[string]string{"team_id": "14", "season": "2024-25"},
	})
	assert.ErrorIs(t, err, datasource.ErrUnsupported)
}

func TestBallDontLieScheduleAndAverages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/games":
			assert.Equal(t, "2025-01-15", r.URL.Query().Get("dates[]"))
			w.Write([]byte(`{"data": [{"id": 77, "date": "2025-01-15", "home_team": {"id": 14}, "visitor_team": {"id": 2}}], "meta": {}}`))
		case "/season_averages":
			assert.Equal(t, "2024", r.URL.Query().Get("season"))
			w.Write([]byte(`{"data": [{"player_id": 237, "games_played": 40, "min": "35:00", "pts": 24.5, "reb": 7.8, "ast": 8.9, "fg_pct": 0.52, "ft_pct": 0.75, "turnover": 3.6}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	src := newTestSource(srv.URL)

	raw, err := src.Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourceSchedule,
		Params:   map[string]string{"date": "2025-01-15"},
	})
	require.NoError(t, err)
	var games []models.ScheduledGame
	require.NoError(t, json.Unmarshal(raw, &games))
	require.Len(t, games, 1)
	opp, home, ok := games[0].Opponent("2")
	assert.True(t, ok)
	assert.False(t, home)
	assert.Equal(t, "14", opp)

	raw, err = src.Fetch(context.Background(), datasource.Request{
		Resource: datasource.ResourceSeasonAverages,
		Params:   map[string]string{"season": "2024-25"},
	})
	require.NoError(t, err)
	var lines []models.StatLine
	require.NoError(t, json.Unmarshal(raw, &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, 40, lines[0].GamesPlayed)
	assert.Equal(t, 24.5, lines[0].Values[valuation.CatPoints])
	assert.Equal(t, 0.52, lines[0].Values[valuation.CatFGPct])
	assert.Equal(t, 35.0, lines[0].Values[valuation.KeyMinutes])
}

func TestParseHelpers(t *testing.T) {
	assert.InDelta(t, 34.2, parseMinutes("34:12"), 1e-9)
	assert.Equal(t, 0.0, parseMinutes(""))
	assert.Equal(t, 12.5, parseMinutes("12.5"))

	year, err := seasonYear("2024-25")
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	_, err = seasonYear("next year")
	assert.Error(t, err)

	assert.Equal(t, "2024-25", seasonLabel(2024))
	assert.Equal(t, "1999-00", seasonLabel(1999))
}
