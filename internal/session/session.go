// Package session owns the live catalog of one raw root. Every operation
// runs under one lock, reloads the file first when it changed on disk and
// saves after a successful mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/report"
	"github.com/franz/audio-catalog/internal/scan"
	"github.com/franz/audio-catalog/internal/store"
	"github.com/franz/audio-catalog/internal/util"
)

// Session serializes access to one catalog
type Session struct {
	mu     sync.Mutex
	store  *store.Store
	cat    *catalog.Catalog
	snap   store.Snapshot
	ledger *history.Ledger
	events *report.EventLogger
	probe  scan.ProbeFunc
}

// Config holds session collaborators. Ledger and Events are optional and
// owned by the session once passed in.
type Config struct {
	Store  *store.Store
	Ledger *history.Ledger
	Events *report.EventLogger
	Probe  scan.ProbeFunc // duration probe for located files
}

// Open loads the catalog, creating it from a first scan when the file does
// not exist yet
func Open(ctx context.Context, cfg *Config) (*Session, error) {
	s := &Session{
		store:  cfg.Store,
		ledger: cfg.Ledger,
		events: cfg.Events,
		probe:  cfg.Probe,
	}

	// Only a bootstrap scan is recorded as a run
	var run *history.Run
	if !s.store.Exists() {
		run = s.startRun()
	}
	var pending []reconcile.Change
	start := time.Now()

	c, summary, err := s.store.Open(ctx, func(ch reconcile.Change) { pending = append(pending, ch) })
	if err != nil {
		if run != nil {
			run.Error = err.Error()
			s.finishRun(run, nil, 0)
		}
		return nil, err
	}
	s.cat = c
	s.refreshSnapshot()

	switch {
	case summary != nil:
		s.recordPass(run, pending, summary, time.Since(start))
	case run != nil:
		run.Error = "catalog created concurrently"
		s.finishRun(run, nil, len(c.Tracks))
	}
	return s, nil
}

// Close releases the ledger and the event log
func (s *Session) Close() error {
	var err error
	if s.ledger != nil {
		err = s.ledger.Close()
	}
	if cerr := s.events.Close(); err == nil {
		err = cerr
	}
	return err
}

// Store returns the underlying catalog store
func (s *Session) Store() *store.Store { return s.store }

// Ledger returns the history ledger, or nil when history is disabled
func (s *Session) Ledger() *history.Ledger { return s.ledger }

// EventLogPath returns the path of this session's event log, if any
func (s *Session) EventLogPath() string { return s.events.Path() }

// View runs fn against the current catalog under the session lock. fn must
// not keep references past its return or modify the catalog.
func (s *Session) View(fn func(c *catalog.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadIfChangedLocked(); err != nil {
		return err
	}
	return fn(s.cat)
}

// ReloadIfChanged reloads the catalog when the file was replaced since the
// last load or save. Reports whether a reload happened.
func (s *Session) ReloadIfChanged() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cat
	if err := s.reloadIfChangedLocked(); err != nil {
		return false, err
	}
	return s.cat != before, nil
}

func (s *Session) reloadIfChangedLocked() error {
	cur, err := s.store.Snapshot()
	if err != nil || cur.IsZero() {
		// A vanished file is recreated by the next save
		return nil
	}
	if s.snap.IsZero() {
		s.snap = cur
		return nil
	}
	if cur == s.snap {
		return nil
	}

	util.InfoLog("Catalog changed on disk, reloading %s", s.store.Path())
	c, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to reload catalog: %w", err)
	}
	s.cat = c
	s.refreshSnapshot()
	return nil
}

// errNoChange lets a mutation skip the save when it turned out to be a no-op
var errNoChange = errors.New("no change")

// mutate applies fn to the catalog and saves it. A failed save keeps the
// mutation in memory and the last snapshot, so the next save writes it
// unless the file was replaced in the meantime.
func (s *Session) mutate(fn func(c *catalog.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(fn)
}

func (s *Session) mutateLocked(fn func(c *catalog.Catalog) error) error {
	if err := s.reloadIfChangedLocked(); err != nil {
		return err
	}
	if err := fn(s.cat); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	return s.saveLocked()
}

func (s *Session) saveLocked() error {
	if err := s.store.Save(s.cat); err != nil {
		return err
	}
	s.refreshSnapshot()
	return nil
}

func (s *Session) refreshSnapshot() {
	snap, err := s.store.Snapshot()
	if err != nil {
		util.DebugLog("Failed to stat catalog: %v", err)
		snap = store.Snapshot{}
	}
	s.snap = snap
}

// record writes explicit (non-scan) changes to the ledger. Ledger failures
// are logged and never fail the operation.
func (s *Session) record(changes ...*history.Change) {
	if s.ledger == nil || len(changes) == 0 {
		return
	}
	if err := s.ledger.RecordChanges(changes); err != nil {
		util.WarnLog("Failed to record history: %v", err)
	}
}

func trackChange(kind string, t *catalog.Track) *history.Change {
	return &history.Change{
		Kind:       kind,
		TrackID:    t.TrackID.String(),
		ClusterID:  t.ClusterID.String(),
		VirtualKey: t.VirtualKey,
		Path:       t.OriginalPath,
		SHA1:       t.Fingerprint.SHA1,
	}
}
