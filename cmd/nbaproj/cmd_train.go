package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain and promote the per-statistic models",
	Long: `Build training sets from the stored game history ending the day before
--as-of, fit a model per configured statistic, and promote each one to
production in the model registry. A statistic that fails to train keeps its
current production model.`,
	RunE: runTrain,
}

var trainAsOf string

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainAsOf, "as-of", "", "Train on games before this date (default today)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asOf, err := parseDate(trainAsOf, time.Now().UTC())
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Training.Retrain(ctx, asOf)
	if err != nil {
		return fmt.Errorf("retrain failed: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(os.Stdout, entries)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATISTIC\tVERSION\tTRAIN START\tTRAIN END\tVALIDATION RMSE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\n", e.Statistic, e.Version,
			e.TrainStart.Format(dateLayout), e.TrainEnd.Format(dateLayout), e.Metrics["validation_rmse"])
	}
	return w.Flush()
}
