package features

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// GameContext is what is known about the target game beyond the player's
// own history. A nil Opponent leaves the opponent features at Missing.
type GameContext struct {
	Team         string
	Position     string
	IsHome       bool
	Opponent     *models.TeamProfile
	SeasonStart  time.Time
	AllStarBreak time.Time
}

// Input is one unit of work for ComputeBatch.
type Input struct {
	PlayerID string
	AsOf     time.Time
	History  []models.GameStatLine
	Context  GameContext
}

// Engineer turns a player's game history into a FeatureVector. It holds no
// per-call state and is safe for concurrent use.
type Engineer struct {
	logger  *logrus.Entry
	workers int
}

func NewEngineer(log *logrus.Logger) *Engineer {
	return &Engineer{
		logger:  logger.WithComponent(log, "feature_engineer"),
		workers: runtime.NumCPU(),
	}
}

// WithWorkers bounds ComputeBatch concurrency.
func (e *Engineer) WithWorkers(n int) *Engineer {
	if n > 0 {
		e.workers = n
	}
	return e
}

// Compute derives every schema feature for playerID as of the start of
// asOf's calendar day. Only games strictly before that day are used, so
// the same inputs always produce the same vector.
func (e *Engineer) Compute(playerID string, asOf time.Time, history []models.GameStatLine, gc GameContext) (*models.FeatureVector, error) {
	if playerID == "" {
		return nil, errors.New("player id is required")
	}
	if asOf.IsZero() {
		return nil, errors.New("as-of date is required")
	}

	day := dateOnly(asOf)
	games := priorGames(playerID, day, history)

	f := make(map[string]float64, len(Schema()))
	rolling(f, games)
	trendAndConsistency(f, games)
	form(f, games, day)
	gameContext(f, games, day, gc)
	temporal(f, day, gc)

	e.logger.WithFields(logrus.Fields{
		"player_id": playerID,
		"as_of":     day.Format("2006-01-02"),
		"games":     len(games),
	}).Debug("Computed feature vector")

	return &models.FeatureVector{
		PlayerID: playerID,
		AsOf:     day,
		Version:  FeatureSetVersion,
		Features: f,
	}, nil
}

// ComputeBatch computes vectors for every input over a bounded worker pool.
// Results are in input order. The first error cancels remaining work.
func (e *Engineer) ComputeBatch(ctx context.Context, inputs []Input) ([]*models.FeatureVector, error) {
	out := make([]*models.FeatureVector, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in := inputs[i]
			fv, err := e.Compute(in.PlayerID, in.AsOf, in.History, in.Context)
			if err != nil {
				return fmt.Errorf("features for %s: %w", in.PlayerID, err)
			}
			out[i] = fv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// priorGames filters to this player's games strictly before day and sorts
// them by date, then game id.
func priorGames(playerID string, day time.Time, history []models.GameStatLine) []models.GameStatLine {
	games := make([]models.GameStatLine, 0, len(history))
	for _, g := range history {
		if g.PlayerID != playerID {
			continue
		}
		if !dateOnly(g.GameDate).Before(day) {
			continue
		}
		games = append(games, g)
	}
	sort.SliceStable(games, func(i, j int) bool {
		di, dj := dateOnly(games[i].GameDate), dateOnly(games[j].GameDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return games[i].GameID < games[j].GameID
	})
	return games
}

func series(games []models.GameStatLine, stat string) []float64 {
	out := make([]float64, len(games))
	for i, g := range games {
		out[i], _ = g.Stat(stat)
	}
	return out
}

func field(games []models.GameStatLine, pick func(models.GameStatLine) int) []float64 {
	out := make([]float64, len(games))
	for i, g := range games {
		out[i] = float64(pick(g))
	}
	return out
}

func rolling(f map[string]float64, games []models.GameStatLine) {
	byStat := make(map[string][]float64, len(models.TrackedStatistics))
	for _, stat := range models.TrackedStatistics {
		byStat[stat] = series(games, stat)
	}
	fgm := field(games, func(g models.GameStatLine) int { return g.FGM })
	fga := field(games, func(g models.GameStatLine) int { return g.FGA })
	fg3m := field(games, func(g models.GameStatLine) int { return g.FG3M })
	fg3a := field(games, func(g models.GameStatLine) int { return g.FG3A })
	ftm := field(games, func(g models.GameStatLine) int { return g.FTM })
	fta := field(games, func(g models.GameStatLine) int { return g.FTA })

	for _, w := range Windows {
		n := w
		if len(games) < n {
			n = len(games)
		}
		f[SampleSizeName(w)] = float64(n)
		for _, stat := range models.TrackedStatistics {
			recent := tail(byStat[stat], w)
			f[AvgName(stat, w)] = mean(recent)
			f[StdName(stat, w)] = sampleStd(recent)
		}
		f[ratioName("fg_pct", w)] = ratio(tail(fgm, w), tail(fga, w))
		f[ratioName("fg3_pct", w)] = ratio(tail(fg3m, w), tail(fg3a, w))
		f[ratioName("ft_pct", w)] = ratio(tail(ftm, w), tail(fta, w))
	}
}

func trendAndConsistency(f map[string]float64, games []models.GameStatLine) {
	for _, stat := range models.TrackedStatistics {
		s := series(games, stat)
		f[TrendName(stat)] = slope(tail(s, trendWindow))
		f[CVName(stat)] = coefficientOfVariation(tail(s, consistencyWindow))
	}
}

func form(f map[string]float64, games []models.GameStatLine, day time.Time) {
	f[FeatureGamesPlayed] = float64(len(games))
	f[FeatureGamesLast7d] = float64(gamesSince(games, day.AddDate(0, 0, -7)))
	f[FeatureGamesLast14d] = float64(gamesSince(games, day.AddDate(0, 0, -14)))

	if len(games) < formWindow {
		f[FeatureFantasyMomentum] = Missing
		f[FeatureHotStreak] = Missing
		f[FeatureColdStreak] = Missing
		return
	}

	fp := series(games, models.StatFantasyPoints)
	seasonAvg := mean(fp)
	recent := tail(fp, formWindow)

	momentum := 0.0
	if seasonAvg > 0 {
		momentum = (mean(recent) - seasonAvg) / seasonAvg
	}
	f[FeatureFantasyMomentum] = momentum

	hot, cold := 1.0, 1.0
	for _, v := range recent {
		if v <= seasonAvg {
			hot = 0
		}
		if v >= seasonAvg {
			cold = 0
		}
	}
	f[FeatureHotStreak] = hot
	f[FeatureColdStreak] = cold
}

func gamesSince(games []models.GameStatLine, from time.Time) int {
	n := 0
	for _, g := range games {
		if !dateOnly(g.GameDate).Before(from) {
			n++
		}
	}
	return n
}

func gameContext(f map[string]float64, games []models.GameStatLine, day time.Time, gc GameContext) {
	if gc.Opponent != nil {
		f[FeatureOppDefRating] = gc.Opponent.DefRating
		f[FeatureOppPace] = gc.Opponent.Pace
		dvp := 1.0
		if v, ok := gc.Opponent.DefenseVsPos[gc.Position]; ok && gc.Position != "" {
			dvp = v
		}
		f[FeatureOppDvP] = dvp
	} else {
		f[FeatureOppDefRating] = Missing
		f[FeatureOppPace] = Missing
		f[FeatureOppDvP] = Missing
	}

	f[FeatureIsHome] = boolFeature(gc.IsHome)
	f[FeatureRestDays] = Missing
	f[FeatureBackToBack] = 0
	f[FeatureThreeInFour] = 0
	if len(games) == 0 {
		return
	}

	last := dateOnly(games[len(games)-1].GameDate)
	rest := int(day.Sub(last).Hours() / 24)
	if rest > maxRestDays {
		rest = maxRestDays
	}
	f[FeatureRestDays] = float64(rest)
	f[FeatureBackToBack] = boolFeature(rest == 1)
	// the target game plus two more in the preceding three days
	f[FeatureThreeInFour] = boolFeature(gamesSince(games, day.AddDate(0, 0, -3)) >= 2)
}

func temporal(f map[string]float64, day time.Time, gc GameContext) {
	f[FeatureDayOfWeek] = float64(day.Weekday())

	if gc.SeasonStart.IsZero() {
		f[FeatureDaysIntoSeason] = Missing
	} else {
		f[FeatureDaysIntoSeason] = float64(int(day.Sub(dateOnly(gc.SeasonStart)).Hours() / 24))
	}

	if gc.AllStarBreak.IsZero() {
		f[FeaturePostAllStar] = Missing
	} else {
		f[FeaturePostAllStar] = boolFeature(!day.Before(dateOnly(gc.AllStarBreak)))
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
