package valuation

import (
	"sort"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// Rank scores every line and orders the profiles by total descending, then
// player id ascending.
func Rank(lines []models.StatLine, pop models.PopulationStats, f FormatSettings) []models.ZScoreProfile {
	profiles := make([]models.ZScoreProfile, len(lines))
	for i, l := range lines {
		profiles[i] = Score(l, pop, f)
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Total != profiles[j].Total {
			return profiles[i].Total > profiles[j].Total
		}
		return profiles[i].PlayerID < profiles[j].PlayerID
	})
	return profiles
}
