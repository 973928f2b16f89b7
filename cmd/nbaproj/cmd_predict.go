package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict <player-id>",
	Short: "Predict one player's statistics for a game date",
	Long: `Load the production models and print the ensemble prediction, interval
and contributing factors for each configured statistic.

Examples:
  nbaproj predict 237
  nbaproj predict 237 --date 2025-01-15 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

var predictDate string

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&predictDate, "date", "", "Game date (default today)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := parseDate(predictDate, time.Now().UTC())
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	pred, err := a.Predictions.GetPrediction(ctx, args[0], date)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(os.Stdout, pred)
	}

	stats := make([]string, 0, len(pred.Predictions))
	for stat := range pred.Predictions {
		stats = append(stats, stat)
	}
	sort.Strings(stats)

	fmt.Printf("%s %s %s\n", pred.PlayerID, pred.Team, pred.GameDate.Format(dateLayout))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATISTIC\tPREDICTION\tLOWER\tUPPER\tCONFIDENCE\tPROFILE\tMODEL")
	for _, stat := range stats {
		r := pred.Predictions[stat]
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.2f\t%s\t%s\n", stat,
			r.Prediction.Value, r.Prediction.Low, r.Prediction.High, r.Prediction.Confidence, r.Profile, r.ModelVersion)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for stat, msg := range pred.Errors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", stat, msg)
	}
	for _, stat := range stats {
		if r := pred.Predictions[stat]; r.Degraded {
			fmt.Printf("%s degraded: %s\n", stat, strings.Join(r.DegradedReasons, "; "))
		}
	}
	return nil
}
