package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/audio-catalog/internal/reconcile"
)

type countingRescanner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRescanner) Rescan(ctx context.Context) (*reconcile.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return &reconcile.Summary{New: 1}, nil
}

func (r *countingRescanner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, root string, onResult ResultFunc) (*countingRescanner, context.CancelFunc, <-chan error) {
	t.Helper()
	target := &countingRescanner{}
	w := New(&Config{Root: root, Debounce: 50 * time.Millisecond, OnResult: onResult}, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watcher register its directories
	time.Sleep(100 * time.Millisecond)
	return target, cancel, done
}

func TestWatcher_AudioFileTriggersRescan(t *testing.T) {
	root := t.TempDir()
	var mu sync.Mutex
	var results []*reconcile.Summary
	target, cancel, done := startWatcher(t, root, func(s *reconcile.Summary, err error) {
		mu.Lock()
		results = append(results, s)
		mu.Unlock()
	})

	_ = os.WriteFile(filepath.Join(root, "new.mp3"), []byte("audio"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count() >= 1
	}, "audio file did not trigger a rescan")

	eventually(t, time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 1 && results[0].New == 1
	}, "result callback not called")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}

func TestWatcher_Debounce(t *testing.T) {
	root := t.TempDir()
	target, cancel, _ := startWatcher(t, root, nil)
	defer cancel()

	// A burst well inside the debounce window
	for _, name := range []string{"a.mp3", "b.ogg", "c.wav"} {
		_ = os.WriteFile(filepath.Join(root, name), []byte(name), 0o644)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count() >= 1
	}, "burst did not trigger a rescan")

	time.Sleep(300 * time.Millisecond)
	if n := target.count(); n > 2 {
		t.Errorf("burst caused %d rescans", n)
	}
}

func TestWatcher_NewDirectoryWatched(t *testing.T) {
	root := t.TempDir()
	target, cancel, _ := startWatcher(t, root, nil)
	defer cancel()

	sub := filepath.Join(root, "pack")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count() >= 1
	}, "new directory did not trigger a rescan")

	before := target.count()
	time.Sleep(150 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.flac"), []byte("audio"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count() > before
	}, "file in new directory did not trigger a rescan")
}

func TestRelevant(t *testing.T) {
	root := t.TempDir()
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer fw.Close()

	w := New(&Config{Root: root}, &countingRescanner{})
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %s", w.debounce)
	}

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"audio write", fsnotify.Event{Name: filepath.Join(root, "a.mp3"), Op: fsnotify.Write}, true},
		{"upper-case extension", fsnotify.Event{Name: filepath.Join(root, "A.FLAC"), Op: fsnotify.Create}, true},
		{"audio removed", fsnotify.Event{Name: filepath.Join(root, "a.ogg"), Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "a.mp3"), Op: fsnotify.Chmod}, false},
		{"not audio", fsnotify.Event{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write}, false},
		{"catalog json", fsnotify.Event{Name: filepath.Join(root, "catalog.json"), Op: fsnotify.Create}, false},
		{"directory removed", fsnotify.Event{Name: filepath.Join(root, "pack"), Op: fsnotify.Remove}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := w.relevant(fw, tc.ev); got != tc.want {
				t.Errorf("relevant(%s) = %v, expected %v", tc.ev, got, tc.want)
			}
		})
	}
}
