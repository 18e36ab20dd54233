package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile the catalog with the raw music directory",
	Long: `Scan the raw music directory and bring the catalog up to date.

Every audio file is fingerprinted by content hash. Hashes are reused when a
file's size and modification time did not change since the last scan.

  new        file not seen before
  updated    known file whose bytes or timestamps changed
  relinked   known track that moved, or was edited under the same name
  duplicates byte-identical copies of a canonical track
  missing    tracks whose file is not on disk

When the catalog file does not exist it is created, with virtual keys
derived from file names.`,
	RunE: runScan,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog totals without scanning",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, catalogPath, err := requirePaths()
	if err != nil {
		return err
	}
	_, statErr := os.Stat(catalogPath)
	bootstrap := os.IsNotExist(statErr)

	start := time.Now()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	util.InfoLog("Raw directory: %s", s.Store().RawRoot())
	util.InfoLog("Catalog: %s", s.Store().Path())

	if bootstrap {
		util.SuccessLog("Catalog created in %v", time.Since(start).Round(time.Millisecond))
		return printTotals(cmd, s.View)
	}

	summary, err := s.Rescan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	util.SuccessLog("Scan complete in %v", time.Since(start).Round(time.Millisecond))
	printSummary(cmd, summary)
	return printTotals(cmd, s.View)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Catalog: %s\n", s.Store().Path())
	if err := printTotals(cmd, s.View); err != nil {
		return err
	}

	runs, err := s.RecentRuns(1)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Last scan: %s\n", humanize.Time(runs[0].StartedAt))
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary *reconcile.Summary) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"New", fmt.Sprint(summary.New)},
		{"Updated", fmt.Sprint(summary.Updated)},
		{"Relinked", fmt.Sprint(summary.Relinked)},
		{"Duplicates", fmt.Sprint(summary.Duplicates)},
		{"Missing", fmt.Sprint(summary.Missing)},
	}
	if st := summary.Scan; st != nil {
		rows = append(rows,
			[]string{"Files scanned", humanize.Comma(int64(st.Files))},
			[]string{"Files hashed", fmt.Sprintf("%d (%s)", st.Hashed, humanize.IBytes(uint64(st.BytesHashed)))},
			[]string{"Hashes reused", humanize.Comma(int64(st.Cached))},
		)
	}
	fmt.Fprintln(out, renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printTotals(cmd *cobra.Command, view func(func(*catalog.Catalog) error) error) error {
	return view(func(c *catalog.Catalog) error {
		var missing, dups int
		var bytes int64
		for _, t := range c.Tracks {
			if t.MissingFile {
				missing++
			}
			if t.DuplicateOf != nil {
				dups++
			}
			bytes += t.Fingerprint.FileSize
		}
		rows := [][]string{
			{"Tracks", humanize.Comma(int64(len(c.Tracks)))},
			{"Clusters", humanize.Comma(int64(len(c.Clusters)))},
			{"Missing", fmt.Sprint(missing)},
			{"Duplicates", fmt.Sprint(dups)},
			{"Audio size", humanize.IBytes(uint64(bytes))},
			{"Updated", humanize.Time(c.UpdatedAt.Time)},
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Catalog", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
		return nil
	})
}
