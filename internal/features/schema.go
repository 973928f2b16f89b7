package features

import (
	"fmt"
	"sync"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// FeatureSetVersion tags every vector produced by this package. Bump it
// whenever a feature is added, removed or its definition changes.
const FeatureSetVersion = "fs-2024.3"

// Missing marks a feature that could not be computed from the available
// history. It is never a legitimate value for any feature.
const Missing = -999.0

// Windows are the rolling lookbacks, in games.
var Windows = []int{3, 5, 10, 15, 30}

const (
	trendWindow       = 10
	consistencyWindow = 30
	formWindow        = 3
	maxRestDays       = 10
	cvMeanFloor       = 1e-6
)

// Form, context and temporal feature names
const (
	FeatureFantasyMomentum = "fantasy_momentum"
	FeatureHotStreak       = "hot_streak"
	FeatureColdStreak      = "cold_streak"
	FeatureGamesPlayed     = "games_played"
	FeatureGamesLast7d     = "games_last_7d"
	FeatureGamesLast14d    = "games_last_14d"

	FeatureOppDefRating = "opp_def_rating"
	FeatureOppPace      = "opp_pace"
	FeatureOppDvP       = "opp_dvp"
	FeatureRestDays     = "rest_days"
	FeatureBackToBack   = "back_to_back"
	FeatureThreeInFour  = "three_in_four"
	FeatureIsHome       = "is_home"

	FeatureDayOfWeek      = "day_of_week"
	FeatureDaysIntoSeason = "days_into_season"
	FeaturePostAllStar    = "post_all_star"
)

// shooting ratio prefixes
var shootingRatios = []string{"fg_pct", "fg3_pct", "ft_pct"}

func AvgName(stat string, window int) string {
	return fmt.Sprintf("%s_avg_%dg", stat, window)
}

func StdName(stat string, window int) string {
	return fmt.Sprintf("%s_std_%dg", stat, window)
}

func SampleSizeName(window int) string {
	return fmt.Sprintf("sample_size_%dg", window)
}

func TrendName(stat string) string {
	return fmt.Sprintf("%s_trend_%dg", stat, trendWindow)
}

func CVName(stat string) string {
	return stat + "_cv"
}

func ratioName(prefix string, window int) string {
	return fmt.Sprintf("%s_%dg", prefix, window)
}

var (
	schemaOnce sync.Once
	schema     []string
)

// Schema returns the ordered, complete list of feature names. Every vector
// carries exactly these keys.
func Schema() []string {
	schemaOnce.Do(func() {
		for _, w := range Windows {
			schema = append(schema, SampleSizeName(w))
			for _, stat := range models.TrackedStatistics {
				schema = append(schema, AvgName(stat, w), StdName(stat, w))
			}
			for _, prefix := range shootingRatios {
				schema = append(schema, ratioName(prefix, w))
			}
		}
		for _, stat := range models.TrackedStatistics {
			schema = append(schema, TrendName(stat), CVName(stat))
		}
		schema = append(schema,
			FeatureFantasyMomentum, FeatureHotStreak, FeatureColdStreak,
			FeatureGamesPlayed, FeatureGamesLast7d, FeatureGamesLast14d,
			FeatureOppDefRating, FeatureOppPace, FeatureOppDvP,
			FeatureRestDays, FeatureBackToBack, FeatureThreeInFour, FeatureIsHome,
			FeatureDayOfWeek, FeatureDaysIntoSeason, FeaturePostAllStar,
		)
	})
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}

// RequiredFor lists the features a prediction for stat cannot be made
// without. Any of them holding Missing makes the vector incomplete.
func RequiredFor(stat string) []string {
	req := make([]string, 0, 2*len(Windows)+3)
	for _, w := range Windows {
		req = append(req, AvgName(stat, w), StdName(stat, w))
	}
	return append(req, TrendName(stat), CVName(stat), FeatureRestDays)
}

// IsMissing reports whether v is the insufficient-history sentinel.
func IsMissing(v float64) bool {
	return v == Missing
}
