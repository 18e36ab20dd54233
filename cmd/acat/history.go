package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded scan runs",
	Long: `List recent scan runs from the history database.

Use 'acat history run <id>' for the changes of one run and
'acat history track <track-id>' for everything that happened to a track.`,
	RunE: runHistory,
}

var historyRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show the changes recorded by one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRun,
}

var historyTrackCmd = &cobra.Command{
	Use:   "track <track-id>",
	Short: "Show every change recorded for one track",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryTrack,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")

	historyCmd.AddCommand(historyRunCmd)
	historyCmd.AddCommand(historyTrackCmd)
	rootCmd.AddCommand(historyCmd)
}

func openLedger() (*history.Ledger, error) {
	path := GetConfigString("history", "")
	if path == "" {
		return nil, fmt.Errorf("%w: history is disabled (set --history or ACAT_HISTORY)", util.ErrNotFound)
	}
	return history.Open(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		util.InfoLog("No runs recorded yet. Run 'acat scan' first.")
		return nil
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(out io.Writer, runs []*history.Run) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := fmt.Sprintf("+%d ~%d >%d =%d ?%d", r.New, r.Updated, r.Relinked, r.Duplicates, r.Missing)
		if r.Error != "" {
			result = "error: " + r.Error
		}
		rows = append(rows, []string{
			fmt.Sprint(r.ID),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond).String(),
			humanize.Comma(int64(r.FilesScanned)),
			humanize.IBytes(uint64(r.BytesHashed)),
			fmt.Sprint(r.Tracks),
			result,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Took", "Files", "Hashed", "Tracks", "new ~upd >rel =dup ?miss"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}

func runHistoryRun(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: invalid run id %q", util.ErrInvalidID, args[0])
	}

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	run, err := ledger.GetRun(id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d: %w", id, util.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	printRuns(out, []*history.Run{run})

	changes, err := ledger.RunChanges(id)
	if err != nil {
		return err
	}
	printChanges(out, changes)
	return nil
}

func runHistoryTrack(cmd *cobra.Command, args []string) error {
	id, err := catalog.ParseID(args[0])
	if err != nil {
		return err
	}

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	changes, err := ledger.TrackChanges(id.String())
	if err != nil {
		return err
	}
	printChanges(cmd.OutOrStdout(), changes)
	return nil
}

func printChanges(out io.Writer, changes []*history.Change) {
	if len(changes) == 0 {
		fmt.Fprintln(out, "No changes recorded.")
		return
	}
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		path := c.Path
		if c.OldPath != "" && c.OldPath != c.Path {
			path = c.OldPath + " -> " + c.Path
		}
		run := ""
		if c.RunID > 0 {
			run = fmt.Sprint(c.RunID)
		}
		rows = append(rows, []string{
			c.At.Format("2006-01-02 15:04:05"),
			run,
			c.Kind,
			c.VirtualKey,
			path,
			c.Detail,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"At", "Run", "Kind", "Virtual Key", "Path", "Detail"}, rows, nil))
}
