package ingestion

import (
	"fmt"
	"math"
	"strings"

	"github.com/stitts-dev/nba-projections/internal/models"
)

type statRange struct {
	min, max float64
}

// Plausible single-game ranges. Values outside are accepted with a warning.
var statRanges = map[string]statRange{
	"minutes":        {0, 60},
	"points":         {0, 100},
	"rebounds":       {0, 40},
	"assists":        {0, 30},
	"steals":         {0, 15},
	"blocks":         {0, 15},
	"turnovers":      {0, 20},
	"fgm":            {0, 40},
	"fga":            {0, 50},
	"fg3m":           {0, 20},
	"fg3a":           {0, 30},
	"ftm":            {0, 30},
	"fta":            {0, 35},
	"personal_fouls": {0, 6},
	"plus_minus":     {-60, 60},
}

// Validator checks a raw boxscore row before it is stored. Structural
// problems reject the row; implausible values only warn.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate normalises line in place and returns any warnings. A non-nil
// error is always a *models.ValidationError.
func (v *Validator) Validate(line *models.GameStatLine) ([]string, error) {
	var problems, warnings []string

	line.PlayerID = strings.TrimSpace(line.PlayerID)
	line.GameID = strings.TrimSpace(line.GameID)
	line.Team = strings.TrimSpace(line.Team)
	line.Opponent = strings.TrimSpace(line.Opponent)

	if line.PlayerID == "" {
		problems = append(problems, "missing player_id")
	}
	if line.GameID == "" {
		problems = append(problems, "missing game_id")
	}
	if line.GameDate.IsZero() {
		problems = append(problems, "missing game_date")
	}
	if line.Team == "" {
		problems = append(problems, "missing team")
	}
	if line.Opponent == "" {
		problems = append(problems, "missing opponent")
	}
	if math.IsNaN(line.Minutes) || math.IsInf(line.Minutes, 0) {
		problems = append(problems, "minutes is not a number")
	}

	counts := map[string]int{
		"points":         line.Points,
		"rebounds":       line.Rebounds,
		"assists":        line.Assists,
		"steals":         line.Steals,
		"blocks":         line.Blocks,
		"turnovers":      line.Turnovers,
		"fgm":            line.FGM,
		"fga":            line.FGA,
		"fg3m":           line.FG3M,
		"fg3a":           line.FG3A,
		"ftm":            line.FTM,
		"fta":            line.FTA,
		"personal_fouls": line.PersonalFouls,
	}
	for _, name := range sortedKeys(counts) {
		if counts[name] < 0 {
			problems = append(problems, fmt.Sprintf("negative %s: %d", name, counts[name]))
		}
	}
	if line.Minutes < 0 {
		problems = append(problems, fmt.Sprintf("negative minutes: %.1f", line.Minutes))
	}

	for _, shot := range []struct {
		label        string
		made, attempt int
	}{
		{"FG", line.FGM, line.FGA},
		{"3PT", line.FG3M, line.FG3A},
		{"FT", line.FTM, line.FTA},
	} {
		if shot.made > shot.attempt {
			problems = append(problems, fmt.Sprintf("%s makes (%d) > attempts (%d)", shot.label, shot.made, shot.attempt))
		}
	}
	if line.FG3M > line.FGM {
		problems = append(problems, fmt.Sprintf("3PT makes (%d) > FG makes (%d)", line.FG3M, line.FGM))
	}

	if len(problems) > 0 {
		return warnings, &models.ValidationError{PlayerID: line.PlayerID, GameID: line.GameID, Problems: problems}
	}

	if line.Rebounds == 0 && line.OffRebounds+line.DefRebounds > 0 {
		line.Rebounds = line.OffRebounds + line.DefRebounds
	}
	if split := line.OffRebounds + line.DefRebounds; split > 0 && absInt(split-line.Rebounds) > 1 {
		warnings = append(warnings, fmt.Sprintf("rebound mismatch: OREB(%d) + DREB(%d) != REB(%d)",
			line.OffRebounds, line.DefRebounds, line.Rebounds))
	}

	values := map[string]float64{"minutes": line.Minutes, "plus_minus": float64(line.PlusMinus)}
	for k, c := range counts {
		values[k] = float64(c)
	}
	for _, name := range sortedKeys(statRanges) {
		r := statRanges[name]
		if val := values[name]; val < r.min || val > r.max {
			warnings = append(warnings, fmt.Sprintf("unusual %s value: %g (expected %g-%g)", name, val, r.min, r.max))
		}
	}

	if line.FantasyPoints == 0 {
		line.FantasyPoints = math.Round(line.ComputeFantasyPoints()*10) / 10
	}

	return warnings, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
