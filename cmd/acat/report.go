package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/report"
	"github.com/franz/audio-catalog/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a Markdown summary of the catalog",
	Long: `Generate a catalog summary report in Markdown format.

The report includes:
- Track, cluster, missing and duplicate totals
- Format breakdown and cluster size distribution
- Duplicate sets and missing tracks
- Recent scan runs from the history database

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().Int("max-duplicates", 50, "Duplicate sets to list (0 = all)")
	reportCmd.Flags().Int("runs", 10, "Recent scan runs to list")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	maxDups, _ := cmd.Flags().GetInt("max-duplicates")
	runLimit, _ := cmd.Flags().GetInt("runs")

	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Catalog: %s", s.Store().Path())

	var summary *report.SummaryReport
	if err := s.View(func(c *catalog.Catalog) error {
		summary = report.GenerateSummaryReport(c, maxDups)
		return nil
	}); err != nil {
		return err
	}
	summary.CatalogPath = s.Store().Path()
	summary.EventLogPath = s.EventLogPath()

	runs, err := s.RecentRuns(runLimit)
	if err != nil {
		util.WarnLog("Failed to read scan history: %v", err)
	}
	summary.RecentRuns = runs

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("events_dir", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated")
	util.InfoLog("  Tracks: %d in %d clusters", summary.Tracks, summary.Clusters)
	util.InfoLog("  Audio size: %s", humanize.IBytes(uint64(summary.TotalBytes)))
	if summary.Missing > 0 {
		util.WarnLog("  Missing: %d", summary.Missing)
	}
	if summary.Duplicates > 0 {
		util.InfoLog("  Duplicates: %d in %d sets", summary.Duplicates, len(summary.DuplicateSets))
	}
	fmt.Fprintln(cmd.OutOrStdout(), outputPath)
	return nil
}
