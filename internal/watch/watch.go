// Package watch rescans the raw music directory when files under it change
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/scan"
	"github.com/franz/audio-catalog/internal/util"
)

// DefaultDebounce is the quiet period before a rescan starts
const DefaultDebounce = 2 * time.Second

// Rescanner runs one reconciliation pass
type Rescanner interface {
	Rescan(ctx context.Context) (*reconcile.Summary, error)
}

// ResultFunc receives the outcome of every watcher-driven rescan
type ResultFunc func(summary *reconcile.Summary, err error)

// Config holds watcher configuration
type Config struct {
	Root     string
	Debounce time.Duration // zero means DefaultDebounce
	OnResult ResultFunc    // optional
}

// Watcher schedules rescans for filesystem events under one root
type Watcher struct {
	root       string
	debounce   time.Duration
	target     Rescanner
	onResult   ResultFunc
	extensions map[string]bool
}

// New creates a Watcher that rescans through target
func New(cfg *Config, target Rescanner) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	extMap := make(map[string]bool, len(scan.AudioExtensions))
	for _, ext := range scan.AudioExtensions {
		extMap[ext] = true
	}
	return &Watcher{
		root:       cfg.Root,
		debounce:   debounce,
		target:     target,
		onResult:   cfg.OnResult,
		extensions: extMap,
	}
}

// Run watches the root recursively until ctx is cancelled. Bursts of
// events collapse into one rescan after the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	util.InfoLog("Watching %s (debounce %s)", w.root, w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			util.InfoLog("Stopped watching %s", w.root)
			return nil

		case <-fire:
			w.rescan(ctx)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(fw, ev) {
				util.DebugLog("Change: %s %s", ev.Op, ev.Name)
				schedule()
			}

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", werr)
		}
	}
}

// relevant reports whether an event may change the scan result. New
// directories are added to the watch list on the way.
func (w *Watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(fw, ev.Name); err != nil {
				util.WarnLog("Failed to watch new directory %s: %v", ev.Name, err)
			}
			return true
		}
	}

	// A removed or renamed directory may have held audio files
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(ev.Name) == "" {
		return true
	}

	if !w.extensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) rescan(ctx context.Context) {
	summary, err := w.target.Rescan(ctx)
	switch {
	case err != nil:
		util.ErrorLog("Rescan failed: %v", err)
	case !summary.IsZero():
		util.SuccessLog("Rescan: %s", summary)
	default:
		util.DebugLog("Rescan: no changes")
	}
	if w.onResult != nil {
		w.onResult(summary, err)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// Symlinked directories are not followed.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
