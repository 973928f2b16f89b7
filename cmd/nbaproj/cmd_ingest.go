package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/nba-projections/internal/ingestion"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch and store box scores",
	Long: `Fetch season game logs through the configured source chain, validate
them and upsert the accepted lines into the game store.

Examples:
  nbaproj ingest                         # every player in today's pool
  nbaproj ingest --date 2025-01-15
  nbaproj ingest --players 237,115 --format json`,
	RunE: runIngest,
}

var (
	ingestDate    string
	ingestPlayers []string
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestDate, "date", "", "Slate date whose player pool is ingested (default today)")
	ingestCmd.Flags().StringSliceVar(&ingestPlayers, "players", nil, "Ingest only these player ids")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := parseDate(ingestDate, time.Now().UTC())
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var report ingestion.Report
	if len(ingestPlayers) > 0 {
		report, err = a.Ingestion.IngestPlayers(ctx, ingestPlayers)
	} else {
		report, err = a.Ingestion.IngestDate(ctx, date)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(os.Stdout, report)
	}
	fmt.Printf("Received: %d  Accepted: %d  Rejected: %d  Warnings: %d\n",
		report.Received, report.Accepted, report.Rejected, report.Warnings)
	if len(report.Errors) > 0 {
		fmt.Printf("Errors:\n  %s\n", strings.Join(report.Errors, "\n  "))
	}
	return nil
}
