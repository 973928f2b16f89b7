package valuation

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// SeasonLines aggregates game logs into per-game season averages per
// player. Shooting percentages are volume-weighted (total makes over total
// attempts), 0 when a player took no attempts.
func SeasonLines(games []models.GameStatLine, season string) []models.StatLine {
	byPlayer := make(map[string][]models.GameStatLine)
	names := make(map[string]string)
	for _, g := range games {
		if season != "" && g.Season != season {
			continue
		}
		byPlayer[g.PlayerID] = append(byPlayer[g.PlayerID], g)
		if g.PlayerName != "" {
			names[g.PlayerID] = g.PlayerName
		}
	}

	ids := make([]string, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.StatLine, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregate(id, names[id], season, byPlayer[id]))
	}
	return out
}

func aggregate(playerID, name, season string, games []models.GameStatLine) models.StatLine {
	n := len(games)
	col := func(f func(models.GameStatLine) float64) []float64 {
		v := make([]float64, n)
		for i, g := range games {
			v[i] = f(g)
		}
		return v
	}
	avg := func(f func(models.GameStatLine) float64) float64 {
		return floats.Sum(col(f)) / float64(n)
	}
	sum := func(f func(models.GameStatLine) float64) float64 {
		return floats.Sum(col(f))
	}

	fgm := sum(func(g models.GameStatLine) float64 { return float64(g.FGM) })
	fga := sum(func(g models.GameStatLine) float64 { return float64(g.FGA) })
	ftm := sum(func(g models.GameStatLine) float64 { return float64(g.FTM) })
	fta := sum(func(g models.GameStatLine) float64 { return float64(g.FTA) })

	values := map[string]float64{
		CatPoints:        avg(func(g models.GameStatLine) float64 { return float64(g.Points) }),
		CatRebounds:      avg(func(g models.GameStatLine) float64 { return float64(g.Rebounds) }),
		CatAssists:       avg(func(g models.GameStatLine) float64 { return float64(g.Assists) }),
		CatSteals:        avg(func(g models.GameStatLine) float64 { return float64(g.Steals) }),
		CatBlocks:        avg(func(g models.GameStatLine) float64 { return float64(g.Blocks) }),
		CatThrees:        avg(func(g models.GameStatLine) float64 { return float64(g.FG3M) }),
		CatTurnovers:     avg(func(g models.GameStatLine) float64 { return float64(g.Turnovers) }),
		KeyMinutes:       avg(func(g models.GameStatLine) float64 { return g.Minutes }),
		KeyFantasyPoints: avg(func(g models.GameStatLine) float64 { return g.FantasyPoints }),
		KeyFGM:           fgm / float64(n),
		KeyFGA:           fga / float64(n),
		KeyFTM:           ftm / float64(n),
		KeyFTA:           fta / float64(n),
		CatFGPct:         ratio(fgm, fga),
		CatFTPct:         ratio(ftm, fta),
	}

	return models.StatLine{
		PlayerID:    playerID,
		Name:        name,
		Season:      season,
		GamesPlayed: n,
		Values:      values,
	}
}

func ratio(made, attempted float64) float64 {
	if attempted == 0 {
		return 0
	}
	return made / attempted
}
