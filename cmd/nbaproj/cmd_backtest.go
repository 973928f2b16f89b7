package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/services"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Walk-forward evaluation of a statistic's model",
	Long: `Replay stored history through rolling train/test windows. Each window
trains only on games before its test window, so no result uses future data.

Examples:
  nbaproj backtest --stat points --start 2025-01-01 --end 2025-03-01
  nbaproj backtest --stat rebounds --start 2025-01-01 --end 2025-03-01 \
      --model rolling_average --train-days 45 --test-days 7 --step-days 7`,
	RunE: runBacktest,
}

var (
	btStat      string
	btModel     string
	btStart     string
	btEnd       string
	btTrainDays int
	btTestDays  int
	btStepDays  int
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btStat, "stat", models.StatPoints, "Statistic to evaluate")
	backtestCmd.Flags().StringVar(&btModel, "model", services.BacktestModelEnsemble, "Model: ensemble, rolling_average")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "First test date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "Last test date (YYYY-MM-DD)")
	backtestCmd.Flags().IntVar(&btTrainDays, "train-days", 60, "Training window length in days")
	backtestCmd.Flags().IntVar(&btTestDays, "test-days", 7, "Test window length in days")
	backtestCmd.Flags().IntVar(&btStepDays, "step-days", 0, "Days between windows (default test-days)")

	_ = backtestCmd.MarkFlagRequired("start")
	_ = backtestCmd.MarkFlagRequired("end")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start, err := parseDate(btStart, time.Time{})
	if err != nil {
		return err
	}
	end, err := parseDate(btEnd, time.Time{})
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Backtests.Run(ctx, services.BacktestRequest{
		Statistic:       btStat,
		Model:           btModel,
		Start:           start,
		End:             end,
		TrainWindowDays: btTrainDays,
		TestWindowDays:  btTestDays,
		StepDays:        btStepDays,
	})
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(os.Stdout, report)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST START\tTEST END\tTRAIN\tN\tMAE\tRMSE\tCOVERAGE\tNOTE")
	for _, win := range report.Windows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.3f\t%.3f\t%.2f\t%s\n",
			win.TestStart.Format(dateLayout), win.TestEnd.Format(dateLayout), win.TrainSamples,
			win.Metrics.SampleCount, win.Metrics.MAE, win.Metrics.RMSE, win.Metrics.IntervalCoverage, win.SkipReason)
	}
	agg := report.Aggregate
	fmt.Fprintf(w, "ALL\t\t\t%d\t%.3f\t%.3f\t%.2f\t\n", agg.SampleCount, agg.MAE, agg.RMSE, agg.IntervalCoverage)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("R2 %.3f  MAPE %.1f%%  directional %.2f  within 10%% %.2f  within 20%% %.2f\n",
		agg.R2, agg.MAPE, agg.DirectionalAccuracy, agg.Within10Pct, agg.Within20Pct)
	return nil
}
