package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/valuation"
	"github.com/stitts-dev/nba-projections/pkg/database"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func newLocalSource(t *testing.T) (*StoreSource, *ingestion.Store) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := ingestion.NewStore(db, logger.NewDiscardLogger())
	require.NoError(t, store.Migrate())

	jan := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }
	lines := []models.GameStatLine{
		{PlayerID: "p1", PlayerName: "Guard One", Position: "PG", GameID: "g1", GameDate: jan(10), Season: "2024-25", Team: "DEN", Opponent: "BOS", IsHome: true, Points: 20, FGM: 8, FGA: 16},
		{PlayerID: "p2", PlayerName: "Wing Two", Position: "SF", GameID: "g1", GameDate: jan(10), Season: "2024-25", Team: "BOS", Opponent: "DEN", IsHome: false, Points: 30, FGM: 10, FGA: 20},
		{PlayerID: "p1", PlayerName: "Guard One", Position: "PG", GameID: "g2", GameDate: jan(12), Season: "2024-25", Team: "DEN", Opponent: "LAL", IsHome: false, Points: 26, FGM: 10, FGA: 18},
	}
	require.NoError(t, store.Upsert(context.Background(), lines))
	require.NoError(t, store.SaveTeamProfile(context.Background(), models.TeamProfile{
		TeamID: "BOS", Season: "2024-25", DefRating: 109.1, Pace: 98.4,
	}))
	return NewStoreSource("local", store), store
}

func fetchLocal(t *testing.T, src *StoreSource, resource datasource.Resource, params map[string]string, out interface{}) error {
	t.Helper()
	raw, err := src.Fetch(context.Background(), datasource.Request{Resource: resource, Params: params})
	if err != nil {
		return err
	}
	require.NoError(t, json.Unmarshal(raw, out))
	return nil
}

func TestStoreSourceGameLog(t *testing.T) {
	src, _ := newLocalSource(t)

	var lines []models.GameStatLine
	require.NoError(t, fetchLocal(t, src, datasource.ResourceGameLog, map[string]string{"player_id": "p1", "season": "2024-25"}, &lines))
	require.Len(t, lines, 2)
	assert.Equal(t, "g1", lines[0].GameID)
	assert.Equal(t, "g2", lines[1].GameID)

	err := fetchLocal(t, src, datasource.ResourceGameLog, map[string]string{"player_id": "nobody"}, &lines)
	var status *datasource.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.False(t, datasource.IsRetryable(err))
}

func TestStoreSourceTeamProfile(t *testing.T) {
	src, _ := newLocalSource(t)

	var p models.TeamProfile
	require.NoError(t, fetchLocal(t, src, datasource.ResourceTeamProfile, map[string]string{"team_id": "BOS", "season": "2024-25"}, &p))
	assert.Equal(t, 109.1, p.DefRating)

	err := fetchLocal(t, src, datasource.ResourceTeamProfile, map[string]string{"team_id": "NYK", "season": "2024-25"}, &p)
	var status *datasource.StatusError
	assert.True(t, errors.As(err, &status))
}

func TestStoreSourceSchedule(t *testing.T) {
	src, _ := newLocalSource(t)

	var games []models.ScheduledGame
	require.NoError(t, fetchLocal(t, src, datasource.ResourceSchedule, map[string]string{"date": "2025-01-10"}, &games))
	require.Len(t, games, 1)
	assert.Equal(t, "DEN", games[0].HomeTeam)
	assert.Equal(t, "BOS", games[0].AwayTeam)
}

func TestStoreSourceSeasonAverages(t *testing.T) {
	src, _ := newLocalSource(t)

	var lines []models.StatLine
	require.NoError(t, fetchLocal(t, src, datasource.ResourceSeasonAverages, map[string]string{"season": "2024-25"}, &lines))
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].PlayerID)
	assert.Equal(t, 2, lines[0].GamesPlayed)
	assert.InDelta(t, 23.0, lines[0].Values[valuation.CatPoints], 1e-9)
	assert.InDelta(t, 18.0/34.0, lines[0].Values[valuation.CatFGPct], 1e-9)
}

func TestStoreSourcePlayerPool(t *testing.T) {
	src, _ := newLocalSource(t)

	var pool []models.PlayerStatus
	require.NoError(t, fetchLocal(t, src, datasource.ResourcePlayerPool, map[string]string{"date": "2025-01-15"}, &pool))
	require.Len(t, pool, 2)
	assert.Equal(t, "p1", pool[0].PlayerID)
	assert.Equal(t, "DEN", pool[0].Team)
	assert.Equal(t, "PG", pool[0].Position)

	// nobody played in the 30 days before opening night
	err := fetchLocal(t, src, datasource.ResourcePlayerPool, map[string]string{"date": "2024-10-01"}, &pool)
	assert.Error(t, err)
}

func TestStoreSourceBehindClientFallback(t *testing.T) {
	src, _ := newLocalSource(t)
	failing := NewBallDontLieSource("primary", "http://127.0.0.1:1", "", 50*time.Millisecond, logger.NewDiscardLogger())

	cfg := datasource.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.RateLimit = 0
	client, err := datasource.NewClient(cfg, nil, []datasource.Source{failing, src}, datasource.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)

	lines, meta, err := client.GameLog(context.Background(), "p1", "2024-25")
	require.NoError(t, err)
	assert.Equal(t, "local", meta.Source)
	assert.Len(t, lines, 2)
}
