package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/database"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// TeamProfileRow persists opponent context between ingestion runs.
type TeamProfileRow struct {
	ID            uint           `gorm:"primaryKey"`
	TeamID        string         `gorm:"uniqueIndex:idx_team_season;not null"`
	Season        string         `gorm:"uniqueIndex:idx_team_season;not null"`
	DefRating     float64        `gorm:"not null"`
	Pace          float64        `gorm:"not null"`
	LeagueDefRank int
	DefenseVsPos  datatypes.JSON
	UpdatedAt     time.Time
}

// TableName specifies the table name for GORM
func (TeamProfileRow) TableName() string {
	return "team_profiles"
}

// Store is the game log repository. Writes go through one mutex so each
// (player_id, game_id) row has a single writer in-process.
type Store struct {
	db     *database.DB
	logger *logrus.Entry
	mu     sync.Mutex
}

func NewStore(db *database.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{db: db, logger: logger.WithField("component", "game_store")}
}

func (s *Store) Migrate() error {
	return s.db.Migrate(&models.GameStatLine{}, &TeamProfileRow{})
}

// Upsert inserts lines or replaces existing rows with the same
// (player_id, game_id).
func (s *Store) Upsert(ctx context.Context, lines []models.GameStatLine) error {
	if len(lines) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]models.GameStatLine, len(lines))
	copy(rows, lines)
	for i := range rows {
		rows[i].ID = 0
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"game_date", "season", "player_name", "position", "team", "opponent", "is_home",
			"minutes", "points", "off_rebounds", "def_rebounds", "rebounds", "assists",
			"steals", "blocks", "turnovers", "personal_fouls", "fgm", "fga", "fg3m", "fg3a",
			"ftm", "fta", "plus_minus", "fantasy_points", "updated_at",
		}),
	}).CreateInBatches(rows, 200).Error
	if err != nil {
		return fmt.Errorf("failed to upsert game stat lines: %w", err)
	}
	return nil
}

// GameLog returns a player's games in a season, oldest first.
func (s *Store) GameLog(ctx context.Context, playerID, season string) ([]models.GameStatLine, error) {
	var lines []models.GameStatLine
	q := s.db.WithContext(ctx).Where("player_id = ?", playerID)
	if season != "" {
		q = q.Where("season = ?", season)
	}
	if err := q.Order("game_date ASC, game_id ASC").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load game log: %w", err)
	}
	return lines, nil
}

// SeasonGames returns every line recorded for a season.
func (s *Store) SeasonGames(ctx context.Context, season string) ([]models.GameStatLine, error) {
	var lines []models.GameStatLine
	err := s.db.WithContext(ctx).
		Where("season = ?", season).
		Order("player_id ASC, game_date ASC, game_id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load season games: %w", err)
	}
	return lines, nil
}

// History returns up to limit games for a player strictly before the given
// date, oldest first.
func (s *Store) History(ctx context.Context, playerID string, before time.Time, limit int) ([]models.GameStatLine, error) {
	var lines []models.GameStatLine
	q := s.db.WithContext(ctx).
		Where("player_id = ? AND game_date < ?", playerID, before).
		Order("game_date DESC, game_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

// GamesBetween returns every line with from <= game_date <= to.
func (s *Store) GamesBetween(ctx context.Context, from, to time.Time) ([]models.GameStatLine, error) {
	var lines []models.GameStatLine
	err := s.db.WithContext(ctx).
		Where("game_date >= ? AND game_date <= ?", from, to).
		Order("game_date ASC, player_id ASC, game_id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}
	return lines, nil
}

func (s *Store) SaveTeamProfile(ctx context.Context, p models.TeamProfile) error {
	dvp, err := json.Marshal(p.DefenseVsPos)
	if err != nil {
		return fmt.Errorf("failed to encode defense vs position: %w", err)
	}
	row := TeamProfileRow{
		TeamID:        p.TeamID,
		Season:        p.Season,
		DefRating:     p.DefRating,
		Pace:          p.Pace,
		LeagueDefRank: p.LeagueDefRank,
		DefenseVsPos:  datatypes.JSON(dvp),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "season"}},
		DoUpdates: clause.AssignmentColumns([]string{"def_rating", "pace", "league_def_rank", "defense_vs_pos", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save team profile: %w", err)
	}
	return nil
}

func (s *Store) TeamProfile(ctx context.Context, teamID, season string) (*models.TeamProfile, error) {
	var row TeamProfileRow
	err := s.db.WithContext(ctx).Where("team_id = ? AND season = ?", teamID, season).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team profile: %w", err)
	}

	p := &models.TeamProfile{
		TeamID:        row.TeamID,
		Season:        row.Season,
		DefRating:     row.DefRating,
		Pace:          row.Pace,
		LeagueDefRank: row.LeagueDefRank,
	}
	if len(row.DefenseVsPos) > 0 {
		if err := json.Unmarshal(row.DefenseVsPos, &p.DefenseVsPos); err != nil {
			s.logger.WithError(err).WithField("team_id", teamID).Warn("Ignoring unreadable defense vs position")
		}
	}
	return p, nil
}

// PlayerIDs lists every player with at least one game on or after since.
func (s *Store) PlayerIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.GameStatLine{}).
		Where("game_date >= ?", since).
		Distinct().Order("player_id ASC").
		Pluck("player_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return ids, nil
}
