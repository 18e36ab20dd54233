package session

import (
	"context"
	"time"

	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/report"
	"github.com/franz/audio-catalog/internal/util"
)

// Rescan reconciles the catalog with the raw root and saves it. A failed
// scan leaves the catalog and the file untouched.
func (s *Session) Rescan(ctx context.Context) (*reconcile.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	run := s.startRun()
	start := time.Now()

	var pending []reconcile.Change
	engine := s.store.Engine(func(ch reconcile.Change) { pending = append(pending, ch) })

	summary, err := engine.Sync(ctx, s.cat, reconcile.Options{})
	if err != nil {
		s.events.LogError(report.EventScan, s.store.RawRoot(), err)
		if run != nil {
			run.Error = err.Error()
			s.finishRun(run, nil, 0)
		}
		return nil, err
	}

	if err := s.saveLocked(); err != nil {
		s.events.LogError(report.EventScan, s.store.Path(), err)
		if run != nil {
			run.Error = err.Error()
			s.finishRun(run, summary, len(s.cat.Tracks))
		}
		return nil, err
	}

	s.recordPass(run, pending, summary, time.Since(start))
	return summary, nil
}

func (s *Session) startRun() *history.Run {
	if s.ledger == nil {
		return nil
	}
	run := &history.Run{
		RawRoot:     s.store.RawRoot(),
		CatalogPath: s.store.Path(),
	}
	if err := s.ledger.StartRun(run); err != nil {
		util.WarnLog("Failed to record scan run: %v", err)
		return nil
	}
	return run
}

func (s *Session) finishRun(run *history.Run, summary *reconcile.Summary, tracks int) {
	if summary != nil {
		run.New = summary.New
		run.Updated = summary.Updated
		run.Relinked = summary.Relinked
		run.Duplicates = summary.Duplicates
		run.Missing = summary.Missing
		if summary.Scan != nil {
			run.FilesScanned = summary.Scan.Files
			run.FilesHashed = summary.Scan.Hashed
			run.BytesHashed = summary.Scan.BytesHashed
		}
	}
	run.Tracks = tracks
	if err := s.ledger.FinishRun(run); err != nil {
		util.WarnLog("Failed to finish scan run: %v", err)
	}
}

// recordPass writes the changes and counts of a saved pass to the event
// log and the ledger
func (s *Session) recordPass(run *history.Run, changes []reconcile.Change, summary *reconcile.Summary, elapsed time.Duration) {
	for _, ch := range changes {
		s.events.LogChange(ch)
	}
	s.events.LogScan(s.store.RawRoot(), summary, elapsed)

	if run == nil {
		return
	}

	rows := make([]*history.Change, 0, len(changes))
	for _, ch := range changes {
		if ch.Track == nil {
			continue
		}
		row := trackChange(string(ch.Kind), ch.Track)
		row.RunID = run.ID
		row.OldPath = ch.OldPath
		row.Detail = ch.Reason
		rows = append(rows, row)
	}
	s.record(rows...)
	s.finishRun(run, summary, len(s.cat.Tracks))
}

// RecentRuns returns the latest recorded scans, newest first. Without a
// ledger the list is empty.
func (s *Session) RecentRuns(limit int) ([]*history.Run, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.RecentRuns(limit)
}
