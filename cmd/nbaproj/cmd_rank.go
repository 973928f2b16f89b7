package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/nba-projections/internal/valuation"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank players by total z-score",
	Long: `Score every qualifying player's season averages against the cohort
median and MAD and print them by total z-score.

Examples:
  nbaproj rank --limit 50
  nbaproj rank --punt ft_pct,tov
  nbaproj rank --categories pts,reb,ast,stl,blk --format json`,
	RunE: runRank,
}

var (
	rankCategories []string
	rankPunts      []string
	rankLimit      int
)

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().StringSliceVar(&rankCategories, "categories", nil, "Scored categories (default 9-cat)")
	rankCmd.Flags().StringSliceVar(&rankPunts, "punt", nil, "Categories to punt")
	rankCmd.Flags().IntVar(&rankLimit, "limit", 25, "Number of players to print (0 for all)")
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := valuation.NewFormat(rankCategories, rankPunts)
	if err != nil {
		return err
	}
	if rankLimit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", rankLimit)
	}

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.Rankings.Rank(ctx, format)
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}
	if rankLimit > 0 && len(profiles) > rankLimit {
		profiles = profiles[:rankLimit]
	}

	if outputFormat == "json" {
		return writeJSON(os.Stdout, profiles)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\tPLAYER\tTOTAL\t%s\n", strings.ToUpper(strings.Join(format.Categories, "\t")))
	for i, p := range profiles {
		name := p.Name
		if name == "" {
			name = p.PlayerID
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f", i+1, name, p.Total)
		for _, cat := range format.Categories {
			fmt.Fprintf(w, "\t%.2f", p.Z[cat])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
