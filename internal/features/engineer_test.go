package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

// pointsHistory builds one game per day from Jan 1 with the given points.
func pointsHistory(playerID string, points ...int) []models.GameStatLine {
	lines := make([]models.GameStatLine, len(points))
	for i, p := range points {
		lines[i] = models.GameStatLine{
			PlayerID:      playerID,
			GameID:        "g" + string(rune('a'+i)),
			GameDate:      day(i + 1),
			Team:          "BOS",
			Opponent:      "NYK",
			Minutes:       32,
			Points:        p,
			Rebounds:      6,
			Assists:       4,
			FGM:           8,
			FGA:           16,
			FG3M:          2,
			FG3A:          6,
			FTM:           4,
			FTA:           5,
			FantasyPoints: float64(p) + 13.2,
		}
	}
	return lines
}

func newTestEngineer() *Engineer {
	return NewEngineer(logger.NewDiscardLogger())
}

func TestComputeRollingAverages(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20, 25, 22, 18, 30), GameContext{})
	require.NoError(t, err)

	assert.InDelta(t, 23.0, fv.Features[AvgName(models.StatPoints, 5)], 1e-9)
	assert.InDelta(t, 70.0/3.0, fv.Features[AvgName(models.StatPoints, 3)], 1e-9)
	assert.InDelta(t, 23.0, fv.Features[AvgName(models.StatPoints, 30)], 1e-9)
	assert.Equal(t, 5.0, fv.Features[SampleSizeName(10)])
	assert.Equal(t, 3.0, fv.Features[SampleSizeName(3)])
	assert.InDelta(t, 0.5, fv.Features[ratioName("fg_pct", 5)], 1e-9)
	assert.InDelta(t, 0.8, fv.Features[ratioName("ft_pct", 5)], 1e-9)
	assert.Equal(t, FeatureSetVersion, fv.Version)
}

func TestComputeTrendSlope(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20, 25, 22, 18, 30), GameContext{})
	require.NoError(t, err)
	assert.InDelta(t, 1.3, fv.Features[TrendName(models.StatPoints)], 1e-9)
}

func TestComputeExcludesGamesOnOrAfterAsOf(t *testing.T) {
	e := newTestEngineer()
	history := pointsHistory("p1", 20, 25, 22, 18, 30)

	fv, err := e.Compute("p1", day(5), history, GameContext{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, fv.Features[FeatureGamesPlayed])
	assert.InDelta(t, 21.25, fv.Features[AvgName(models.StatPoints, 5)], 1e-9)
}

func TestComputeIgnoresOtherPlayers(t *testing.T) {
	e := newTestEngineer()
	history := append(pointsHistory("p1", 20, 30), pointsHistory("p2", 50, 50)...)

	fv, err := e.Compute("p1", day(7), history, GameContext{})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, fv.Features[AvgName(models.StatPoints, 5)], 1e-9)
}

func TestComputeNoHistoryUsesSentinel(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), nil, GameContext{})
	require.NoError(t, err)

	assert.Equal(t, Missing, fv.Features[AvgName(models.StatPoints, 5)])
	assert.Equal(t, Missing, fv.Features[StdName(models.StatPoints, 5)])
	assert.Equal(t, Missing, fv.Features[TrendName(models.StatPoints)])
	assert.Equal(t, Missing, fv.Features[CVName(models.StatPoints)])
	assert.Equal(t, Missing, fv.Features[ratioName("fg_pct", 3)])
	assert.Equal(t, Missing, fv.Features[FeatureRestDays])
	assert.Equal(t, Missing, fv.Features[FeatureOppDefRating])
	assert.Equal(t, Missing, fv.Features[FeatureHotStreak])
	assert.Equal(t, 0.0, fv.Features[SampleSizeName(5)])
	assert.Equal(t, 0.0, fv.Features[FeatureGamesPlayed])
}

func TestComputeSingleGame(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20), GameContext{})
	require.NoError(t, err)

	assert.Equal(t, 20.0, fv.Features[AvgName(models.StatPoints, 3)])
	assert.Equal(t, 0.0, fv.Features[StdName(models.StatPoints, 3)])
	assert.Equal(t, Missing, fv.Features[TrendName(models.StatPoints)])
}

func TestComputeConsistencyGuard(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20, 25, 22), GameContext{})
	require.NoError(t, err)

	// steals are zero in every game
	assert.Equal(t, 0.0, fv.Features[CVName(models.StatSteals)])
	assert.Greater(t, fv.Features[CVName(models.StatPoints)], 0.0)
}

func TestComputeRestAndSchedule(t *testing.T) {
	e := newTestEngineer()
	history := pointsHistory("p1", 20, 25, 22, 18, 30) // Jan 1..5

	tests := []struct {
		name        string
		asOf        time.Time
		rest        float64
		backToBack  float64
		threeInFour float64
		last7       float64
	}{
		{"back to back", day(6), 1, 1, 1, 5},
		{"one day off", day(7), 2, 0, 1, 5},
		{"long layoff capped", day(25), 10, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv, err := e.Compute("p1", tt.asOf, history, GameContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.rest, fv.Features[FeatureRestDays])
			assert.Equal(t, tt.backToBack, fv.Features[FeatureBackToBack])
			assert.Equal(t, tt.threeInFour, fv.Features[FeatureThreeInFour])
			assert.Equal(t, tt.last7, fv.Features[FeatureGamesLast7d])
		})
	}
}

func TestComputeContextAndTemporal(t *testing.T) {
	e := newTestEngineer()
	gc := GameContext{
		Position: "PG",
		IsHome:   true,
		Opponent: &models.TeamProfile{
			TeamID:       "NYK",
			DefRating:    108.5,
			Pace:         97.2,
			DefenseVsPos: map[string]float64{"PG": 1.08},
		},
		SeasonStart:  time.Date(2024, 10, 22, 0, 0, 0, 0, time.UTC),
		AllStarBreak: time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
	}

	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20, 25, 22), gc)
	require.NoError(t, err)

	assert.Equal(t, 108.5, fv.Features[FeatureOppDefRating])
	assert.Equal(t, 97.2, fv.Features[FeatureOppPace])
	assert.Equal(t, 1.08, fv.Features[FeatureOppDvP])
	assert.Equal(t, 1.0, fv.Features[FeatureIsHome])
	assert.Equal(t, 2.0, fv.Features[FeatureDayOfWeek]) // Jan 7 2025 is a Tuesday
	assert.Equal(t, 77.0, fv.Features[FeatureDaysIntoSeason])
	assert.Equal(t, 0.0, fv.Features[FeaturePostAllStar])
}

func TestComputeForm(t *testing.T) {
	e := newTestEngineer()

	fv, err := e.Compute("p1", day(10), pointsHistory("p1", 10, 10, 10, 30, 30, 30), GameContext{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, fv.Features[FeatureHotStreak])
	assert.Equal(t, 0.0, fv.Features[FeatureColdStreak])
	assert.Greater(t, fv.Features[FeatureFantasyMomentum], 0.0)

	fv, err = e.Compute("p1", day(10), pointsHistory("p1", 30, 30, 30, 10, 10, 10), GameContext{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, fv.Features[FeatureHotStreak])
	assert.Equal(t, 1.0, fv.Features[FeatureColdStreak])
	assert.Less(t, fv.Features[FeatureFantasyMomentum], 0.0)
}

func TestComputeCoversSchema(t *testing.T) {
	e := newTestEngineer()
	fv, err := e.Compute("p1", day(7), pointsHistory("p1", 20, 25), GameContext{})
	require.NoError(t, err)

	names := Schema()
	assert.Len(t, fv.Features, len(names))
	for _, name := range names {
		_, ok := fv.Features[name]
		assert.True(t, ok, "missing feature %s", name)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	e := newTestEngineer()
	history := pointsHistory("p1", 20, 25, 22, 18, 30)
	shuffled := []models.GameStatLine{history[3], history[0], history[4], history[2], history[1]}

	a, err := e.Compute("p1", day(7).Add(15*time.Hour), history, GameContext{})
	require.NoError(t, err)
	b, err := e.Compute("p1", day(7), shuffled, GameContext{})
	require.NoError(t, err)

	ab, err := a.Bytes()
	require.NoError(t, err)
	bb, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(ab), string(bb))
}

func TestComputeValidatesInput(t *testing.T) {
	e := newTestEngineer()
	_, err := e.Compute("", day(7), nil, GameContext{})
	assert.Error(t, err)
	_, err = e.Compute("p1", time.Time{}, nil, GameContext{})
	assert.Error(t, err)
}

func TestComputeBatchPreservesOrder(t *testing.T) {
	e := newTestEngineer().WithWorkers(2)
	inputs := []Input{
		{PlayerID: "p1", AsOf: day(7), History: pointsHistory("p1", 10)},
		{PlayerID: "p2", AsOf: day(7), History: pointsHistory("p2", 20)},
		{PlayerID: "p3", AsOf: day(7), History: pointsHistory("p3", 30)},
	}

	out, err := e.ComputeBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, fv := range out {
		assert.Equal(t, inputs[i].PlayerID, fv.PlayerID)
		assert.Equal(t, float64(10*(i+1)), fv.Features[AvgName(models.StatPoints, 3)])
	}
}

func TestRequiredFor(t *testing.T) {
	req := RequiredFor(models.StatPoints)
	assert.Contains(t, req, AvgName(models.StatPoints, 30))
	assert.Contains(t, req, TrendName(models.StatPoints))
	assert.Contains(t, req, FeatureRestDays)
	for _, name := range req {
		assert.Contains(t, Schema(), name)
	}
}
