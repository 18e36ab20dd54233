package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/util"
	"github.com/franz/audio-catalog/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rescan whenever audio files under the raw directory change",
	Long: `Watch the raw music directory and rescan after changes settle.

Events are collected until nothing changed for the debounce period, then
one rescan runs. New subdirectories are watched as they appear. Stop with
Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a rescan")
	watchCmd.Flags().Bool("initial", true, "Rescan once before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	debounce, _ := cmd.Flags().GetDuration("debounce")
	initial, _ := cmd.Flags().GetBool("initial")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if initial {
		summary, err := s.Rescan(ctx)
		if err != nil {
			return err
		}
		util.InfoLog("Initial scan: %s", summary)
	}

	w := watch.New(&watch.Config{
		Root:     s.Store().RawRoot(),
		Debounce: debounce,
		OnResult: func(summary *reconcile.Summary, err error) {
			if err == nil && summary.Missing > 0 {
				util.WarnLog("%d tracks are missing their file", summary.Missing)
			}
		},
	}, s)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return w.Run(gCtx)
	})

	// Handle shutdown signals
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			util.InfoLog("Received %s, stopping", sig)
		case <-gCtx.Done():
		}
		cancel()
		return nil
	})

	return g.Wait()
}
