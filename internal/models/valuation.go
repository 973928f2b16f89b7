package models

// ZScoreProfile holds per-category z-scores; every category of the format
// is present, punted ones fixed at 0.
type ZScoreProfile struct {
	PlayerID string             `json:"player_id"`
	Name     string             `json:"name,omitempty"`
	Season   string             `json:"season"`
	Format   string             `json:"format"`
	Z        map[string]float64 `json:"z_scores"`
	Total    float64            `json:"total"`
}

type CategoryStats struct {
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"`
}

// PopulationStats is the cohort snapshot z-scores are computed against.
type PopulationStats struct {
	Season         string                   `json:"season"`
	Format         string                   `json:"format"`
	MinGamesPlayed int                      `json:"min_games_played"`
	Size           int                      `json:"size"`
	Categories     map[string]CategoryStats `json:"categories"`
}
