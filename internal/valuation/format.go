package valuation

import "fmt"

// Category keys used in StatLine.Values and z-score maps
const (
	CatPoints    = "pts"
	CatRebounds  = "reb"
	CatAssists   = "ast"
	CatSteals    = "stl"
	CatBlocks    = "blk"
	CatThrees    = "fg3m"
	CatFGPct     = "fg_pct"
	CatFTPct     = "ft_pct"
	CatTurnovers = "tov"

	// Supporting values carried on season lines
	KeyFGM           = "fgm"
	KeyFGA           = "fga"
	KeyFTM           = "ftm"
	KeyFTA           = "fta"
	KeyMinutes       = "min"
	KeyFantasyPoints = "fantasy_points"
)

// lowerIsBetter categories have their z-score sign flipped as the last step.
var lowerIsBetter = map[string]bool{
	CatTurnovers: true,
}

// FormatSettings names the scored categories of a league format and the
// categories a manager is punting.
type FormatSettings struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Punted     []string `json:"punted,omitempty"`
}

// NineCategory is the standard 9-cat head-to-head format.
func NineCategory() FormatSettings {
	return FormatSettings{
		Name: "9cat",
		Categories: []string{
			CatPoints, CatRebounds, CatAssists, CatSteals, CatBlocks,
			CatThrees, CatFGPct, CatFTPct, CatTurnovers,
		},
	}
}

// WithPunts returns a copy of f with the given categories punted.
func (f FormatSettings) WithPunts(punted ...string) FormatSettings {
	out := f
	out.Categories = append([]string(nil), f.Categories...)
	out.Punted = append(append([]string(nil), f.Punted...), punted...)
	return out
}

func (f FormatSettings) isPunted(cat string) bool {
	for _, p := range f.Punted {
		if p == cat {
			return true
		}
	}
	return false
}

// NewFormat builds a format from category and punt lists. No categories
// means 9-cat. Every category must be a known 9-cat category and every
// punt must be one of the format's categories.
func NewFormat(categories, punted []string) (FormatSettings, error) {
	format := NineCategory()
	if len(categories) > 0 {
		known := make(map[string]bool, len(format.Categories))
		for _, cat := range format.Categories {
			known[cat] = true
		}
		for _, cat := range categories {
			if !known[cat] {
				return format, fmt.Errorf("unknown category %q", cat)
			}
		}
		format = FormatSettings{Name: "custom", Categories: categories}
	}

	in := make(map[string]bool, len(format.Categories))
	for _, cat := range format.Categories {
		in[cat] = true
	}
	for _, p := range punted {
		if !in[p] {
			return format, fmt.Errorf("punted category %q is not in the format", p)
		}
	}
	if len(punted) > 0 {
		format = format.WithPunts(punted...)
	}
	return format, nil
}
