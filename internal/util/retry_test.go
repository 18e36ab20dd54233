package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 4 * time.Millisecond}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy rename", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY}, true},
		{"again on open", &os.PathError{Op: "open", Path: "catalog.json", Err: syscall.EAGAIN}, true},
		{"interrupted", syscall.EINTR, true},
		{"wrapped io error", fmt.Errorf("read catalog: %w", &os.PathError{Op: "read", Path: "x", Err: syscall.EIO}), true},
		{"message timeout", errors.New("sync client: operation timed out"), true},
		{"too many open files", errors.New("open x: too many open files"), true},
		{"not exist", &os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, false},
		{"permission", &os.PathError{Op: "open", Path: "x", Err: syscall.EACCES}, false},
		{"sentinel", ErrNotFound, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryableError(tc.err); got != tc.want {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	busy := &os.PathError{Op: "open", Path: "catalog.json", Err: syscall.EBUSY}

	tests := []struct {
		name      string
		failures  int   // leading failures before success
		err       error // error returned while failing
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, busy, 3, 1, false},
		{"busy then free", 2, busy, 3, 3, false},
		{"busy too long", 5, busy, 3, 3, true},
		{"permanent error", 5, ErrConflict, 3, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			got, err := RetryWithBackoff(fastRetry(tc.attempts), func() (string, error) {
				calls++
				if calls <= tc.failures {
					return "", tc.err
				}
				return "data", nil
			}, "read catalog")

			if calls != tc.wantCalls {
				t.Errorf("calls = %d, expected %d", calls, tc.wantCalls)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, tc.err) {
				t.Errorf("final error %v does not wrap %v", err, tc.err)
			}
			if err == nil && got != "data" {
				t.Errorf("result = %q", got)
			}
		})
	}
}

func TestRetryWithBackoff_WaitCapped(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 4, InitialWait: 5 * time.Millisecond, MaxWait: 10 * time.Millisecond}
	busy := syscall.EBUSY

	start := time.Now()
	_, err := RetryWithBackoff(cfg, func() (int, error) { return 0, busy }, "rename")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error")
	}
	// Waits: 5ms, 10ms, 10ms (capped)
	if elapsed < 25*time.Millisecond {
		t.Errorf("elapsed %v, expected at least 25ms of backoff", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("elapsed %v, backoff not capped", elapsed)
	}
}

func TestRetryableRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, ".catalog.json.tmp-1")
	dst := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RetryableRename(src, dst, fastRetry(3)); err != nil {
		t.Fatalf("RetryableRename: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "new" {
		t.Errorf("destination = %q", data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists")
	}

	// A missing source is not transient
	if err := RetryableRename(src, dst, fastRetry(3)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestRetryableOpen_Missing(t *testing.T) {
	_, err := RetryableOpen(filepath.Join(t.TempDir(), "absent.mp3"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestRetryConfigs(t *testing.T) {
	def := DefaultRetryConfig()
	synced := SyncedFolderRetryConfig()

	if def.MaxAttempts < 1 || def.InitialWait <= 0 || def.MaxWait < def.InitialWait {
		t.Errorf("bad default config %+v", def)
	}
	if synced.MaxAttempts <= def.MaxAttempts {
		t.Errorf("synced folders should retry more than the default: %d <= %d", synced.MaxAttempts, def.MaxAttempts)
	}
}
