package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/nba-projections/internal/app"
	"github.com/stitts-dev/nba-projections/pkg/config"
	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

const dateLayout = "2006-01-02"

var (
	outputFormat string
	quiet        bool
)

// rootCmd is the base command for the nbaproj CLI
var rootCmd = &cobra.Command{
	Use:   "nbaproj",
	Short: "NBA projection and valuation tooling",
	Long: `nbaproj runs the batch side of the projections service against the
configured database and data sources: ingesting box scores, retraining
models, walk-forward backtests, z-score rankings and one-off predictions.

Configuration is read from the environment and .env, the same as the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress log output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the service graph for one command run.
// withModels also loads the production models into the predictor.
func bootstrap(ctx context.Context, withModels bool) (*app.App, error) {
	if outputFormat != "table" && outputFormat != "json" {
		return nil, fmt.Errorf("unsupported format %q (want table or json)", outputFormat)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var log *logrus.Logger
	if quiet {
		log = logger.NewDiscardLogger()
	} else {
		log = logger.InitLogger("", cfg.IsDevelopment())
		log.SetOutput(os.Stderr)
	}

	a, err := app.New(ctx, cfg, log, metrics.NewManager())
	if err != nil {
		return nil, err
	}
	if withModels {
		if err := a.LoadModels(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}
