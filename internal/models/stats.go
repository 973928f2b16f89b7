package models

import (
	"time"
)

// Statistic names shared by features, models and valuation
const (
	StatPoints        = "points"
	StatRebounds      = "rebounds"
	StatAssists       = "assists"
	StatSteals        = "steals"
	StatBlocks        = "blocks"
	StatTurnovers     = "turnovers"
	StatThreesMade    = "threes_made"
	StatMinutes       = "minutes"
	StatFantasyPoints = "fantasy_points"
)

// TrackedStatistics is the fixed, ordered set of per-game statistics that
// features are derived from.
var TrackedStatistics = []string{
	StatPoints,
	StatRebounds,
	StatAssists,
	StatSteals,
	StatBlocks,
	StatTurnovers,
	StatThreesMade,
	StatMinutes,
	StatFantasyPoints,
}

// IsTrackedStatistic reports whether name is a predictable statistic.
func IsTrackedStatistic(name string) bool {
	for _, s := range TrackedStatistics {
		if s == name {
			return true
		}
	}
	return false
}

// GameStatLine is one player's boxscore for one game. Rows are never
// mutated; a corrected ingestion replaces the row for the same
// (player_id, game_id).
type GameStatLine struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	PlayerID      string    `gorm:"uniqueIndex:idx_player_game;not null" json:"player_id"`
	GameID        string    `gorm:"uniqueIndex:idx_player_game;not null" json:"game_id"`
	GameDate      time.Time `gorm:"index;not null" json:"game_date"`
	Season        string    `gorm:"index" json:"season"`
	PlayerName    string    `json:"player_name,omitempty"`
	Position      string    `json:"position,omitempty"`
	Team          string    `gorm:"not null" json:"team"`
	Opponent      string    `gorm:"not null" json:"opponent"`
	IsHome        bool      `json:"is_home"`
	Minutes       float64   `json:"minutes"`
	Points        int       `json:"points"`
	OffRebounds   int       `json:"off_rebounds"`
	DefRebounds   int       `json:"def_rebounds"`
	Rebounds      int       `json:"rebounds"`
	Assists       int       `json:"assists"`
	Steals        int       `json:"steals"`
	Blocks        int       `json:"blocks"`
	Turnovers     int       `json:"turnovers"`
	PersonalFouls int       `json:"personal_fouls"`
	FGM           int       `json:"fgm"`
	FGA           int       `json:"fga"`
	FG3M          int       `json:"fg3m"`
	FG3A          int       `json:"fg3a"`
	FTM           int       `json:"ftm"`
	FTA           int       `json:"fta"`
	PlusMinus     int       `json:"plus_minus"`
	FantasyPoints float64   `json:"fantasy_points"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (GameStatLine) TableName() string {
	return "game_stat_lines"
}

// Stat returns the value of a tracked statistic for this game.
func (g GameStatLine) Stat(name string) (float64, bool) {
	switch name {
	case StatPoints:
		return float64(g.Points), true
	case StatRebounds:
		return float64(g.Rebounds), true
	case StatAssists:
		return float64(g.Assists), true
	case StatSteals:
		return float64(g.Steals), true
	case StatBlocks:
		return float64(g.Blocks), true
	case StatTurnovers:
		return float64(g.Turnovers), true
	case StatThreesMade:
		return float64(g.FG3M), true
	case StatMinutes:
		return g.Minutes, true
	case StatFantasyPoints:
		return g.FantasyPoints, true
	}
	return 0, false
}

// Standard fantasy scoring weights applied at ingestion
const (
	FantasyPointWeight    = 1.0
	FantasyReboundWeight  = 1.2
	FantasyAssistWeight   = 1.5
	FantasyStealWeight    = 3.0
	FantasyBlockWeight    = 3.0
	FantasyTurnoverWeight = -1.0
)

// ComputeFantasyPoints derives fantasy points from the counting stats.
func (g GameStatLine) ComputeFantasyPoints() float64 {
	return float64(g.Points)*FantasyPointWeight +
		float64(g.Rebounds)*FantasyReboundWeight +
		float64(g.Assists)*FantasyAssistWeight +
		float64(g.Steals)*FantasyStealWeight +
		float64(g.Blocks)*FantasyBlockWeight +
		float64(g.Turnovers)*FantasyTurnoverWeight
}

// TeamProfile carries opponent season aggregates used as context.
type TeamProfile struct {
	TeamID        string             `json:"team_id"`
	Season        string             `json:"season"`
	DefRating     float64            `json:"def_rating"`
	Pace          float64            `json:"pace"`
	DefenseVsPos  map[string]float64 `json:"defense_vs_position,omitempty"` // 1.0 = league average
	LeagueDefRank int                `json:"league_def_rank,omitempty"`
}

// ScheduledGame is one game on the league schedule.
type ScheduledGame struct {
	GameID   string    `json:"game_id"`
	GameDate time.Time `json:"game_date"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
}

// Opponent returns the other side of the game for team, and whether team
// is at home. ok is false when team is not playing.
func (g ScheduledGame) Opponent(team string) (opponent string, isHome bool, ok bool) {
	switch team {
	case g.HomeTeam:
		return g.AwayTeam, true, true
	case g.AwayTeam:
		return g.HomeTeam, false, true
	}
	return "", false, false
}

// PlayerStatus carries situational flags for a player on a slate.
type PlayerStatus struct {
	PlayerID          string `json:"player_id"`
	Name              string `json:"name,omitempty"`
	Team              string `json:"team"`
	Position          string `json:"position,omitempty"`
	ReturningInjury   bool   `json:"returning_from_injury"`
	GamesWithTeam     int    `json:"games_with_team"`
	InjuryDesignation string `json:"injury_designation,omitempty"`
}

// StatLine is a season (or projected) aggregate line used for valuation.
// Values are keyed by category name; percentage categories carry the
// percentage itself.
type StatLine struct {
	PlayerID    string             `json:"player_id"`
	Name        string             `json:"name,omitempty"`
	Season      string             `json:"season"`
	GamesPlayed int                `json:"games_played"`
	Values      map[string]float64 `json:"values"`
}
