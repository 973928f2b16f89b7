package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/datasource"
	"github.com/stitts-dev/nba-projections/internal/ingestion"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/database"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func newIngestFixture(t *testing.T, data DataProvider) (*IngestionService, *ingestion.Store) {
	t.Helper()
	log := logger.NewDiscardLogger()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := ingestion.NewStore(db, log)
	require.NoError(t, store.Migrate())
	return NewIngestionService(data, ingestion.NewIngestor(store, log), store, testSeason, 2, log), store
}

func TestIngestDateStoresLogsAndProfiles(t *testing.T) {
	data := slateProvider(4)
	data.On("TeamProfile", mock.Anything, "DEN", testSeason).Return(models.TeamProfile{
		TeamID: "DEN", Season: testSeason, DefRating: 112.1, Pace: 99.4, LeagueDefRank: 14,
	}, datasource.Meta{Source: "primary"}, nil)
	svc, store := newIngestFixture(t, data)
	ctx := context.Background()

	report, err := svc.IngestDate(ctx, jan(7))
	require.NoError(t, err)
	assert.Equal(t, 20, report.Received)
	assert.Equal(t, 20, report.Accepted)
	assert.Zero(t, report.Rejected)

	games, err := store.GameLog(ctx, "p3", testSeason)
	require.NoError(t, err)
	assert.Len(t, games, 5)

	bos, err := store.TeamProfile(ctx, "BOS", testSeason)
	require.NoError(t, err)
	assert.Equal(t, 4, bos.LeagueDefRank)
	_, err = store.TeamProfile(ctx, "DEN", testSeason)
	assert.NoError(t, err)
}

func TestIngestPlayersReportsFetchFailures(t *testing.T) {
	data := &MockDataProvider{}
	data.On("GameLog", mock.Anything, "p1", testSeason).Return(gameLog("p1", "DEN"), datasource.Meta{Source: "primary"}, nil)
	data.On("GameLog", mock.Anything, "p2", testSeason).Return(nil, datasource.Meta{}, errors.New("404 not found"))
	svc, store := newIngestFixture(t, data)

	report, err := svc.IngestPlayers(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Accepted)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "p2")

	ids, err := store.PlayerIDs(context.Background(), jan(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestIngestPlayersRejectsInvalidLines(t *testing.T) {
	bad := gameLog("p1", "DEN")
	bad[2].Opponent = ""
	data := &MockDataProvider{}
	data.On("GameLog", mock.Anything, "p1", testSeason).Return(bad, datasource.Meta{Source: "primary"}, nil)
	svc, _ := newIngestFixture(t, data)

	report, err := svc.IngestPlayers(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Accepted)
	assert.Equal(t, 1, report.Rejected)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "missing opponent")
}

func TestIngestDateNeedsPlayerPool(t *testing.T) {
	data := &MockDataProvider{}
	data.On("PlayerPool", mock.Anything, mock.Anything).Return(nil, datasource.Meta{}, errors.New("down"))
	svc, _ := newIngestFixture(t, data)

	_, err := svc.IngestDate(context.Background(), jan(7))
	assert.ErrorContains(t, err, "player pool")
}

func TestIngestResolvesCachedPredictions(t *testing.T) {
	predictor := newFakePredictor(map[string]float64{"p1": 28})
	predictions := newTestService(slateProvider(20), predictor, models.StatPoints, models.StatRebounds)
	ctx := context.Background()

	var played []models.GameStatLine
	for d := 10; d < 22; d++ {
		_, err := predictions.PredictStat(ctx, "p1", jan(d), models.StatPoints)
		require.NoError(t, err)
		played = append(played, models.GameStatLine{
			PlayerID: "p1",
			GameID:   fmt.Sprintf("g%d", d),
			GameDate: jan(d),
			Season:   testSeason,
			Team:     "DEN",
			Opponent: "BOS",
			Minutes:  32,
			Points:   20 + d,
			Rebounds: 6,
			Assists:  4,
		})
	}

	data := &MockDataProvider{}
	data.On("GameLog", mock.Anything, "p1", testSeason).Return(played, datasource.Meta{Source: "primary"}, nil)
	data.On("GameLog", mock.Anything, "p2", testSeason).Return(gameLog("p2", "DEN"), datasource.Meta{Source: "primary"}, nil)
	svc, _ := newIngestFixture(t, data)
	svc.SetOutcomeRecorder(predictions)

	report, err := svc.IngestPlayers(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 17, report.Accepted)
	assert.Len(t, report.Lines, 17)

	// only predicted (player, date, statistic) triples resolve
	require.Len(t, predictor.observed, 12)
	byActual := map[float64]bool{}
	for _, o := range predictor.observed {
		assert.Equal(t, "p1", o.playerID)
		assert.Equal(t, models.StatPoints, o.statistic)
		byActual[o.actual] = true
	}
	for d := 10; d < 22; d++ {
		assert.True(t, byActual[float64(20+d)], "jan %d", d)
	}

	// re-ingesting the same games records nothing new
	_, err = svc.IngestPlayers(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Len(t, predictor.observed, 12)
}
