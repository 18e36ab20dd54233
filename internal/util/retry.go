package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"
)

// RetryConfig bounds retries of a filesystem call. The wait doubles after
// each failed attempt up to MaxWait.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig is used for local files such as audio and config
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, InitialWait: 100 * time.Millisecond, MaxWait: 5 * time.Second}
}

// SyncedFolderRetryConfig is used for the catalog file, which often lives in
// a folder whose sync client briefly holds it open after pulling a new
// version.
func SyncedFolderRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 5, InitialWait: 200 * time.Millisecond, MaxWait: 3 * time.Second}
}

var transientErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.EBUSY,
	syscall.ETIMEDOUT,
	syscall.EINTR,
	syscall.EIO, // network mounts
}

// Matched against error text when no errno is available
var transientMessages = []string{
	"timeout",
	"timed out",
	"resource busy",
	"resource temporarily unavailable",
	"i/o error",
	"too many open files",
}

// IsRetryableError reports whether err looks like a transient filesystem
// failure
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return slices.Contains(transientErrnos, errno)
	}

	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMessages, func(m string) bool {
		return strings.Contains(msg, m)
	})
}

// RetryWithBackoff calls fn until it succeeds, fails permanently or runs out
// of attempts. The last error is wrapped when attempts are exhausted.
func RetryWithBackoff[T any](cfg *RetryConfig, fn func() (T, error), what string) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	wait := cfg.InitialWait
	for attempt := 1; ; attempt++ {
		v, err := fn()
		switch {
		case err == nil:
			if attempt > 1 {
				DebugLog("%s succeeded on attempt %d", what, attempt)
			}
			return v, nil
		case !IsRetryableError(err):
			return v, err
		case attempt >= cfg.MaxAttempts:
			WarnLog("%s still failing after %d attempts: %v", what, attempt, err)
			return v, fmt.Errorf("%s: gave up after %d attempts: %w", what, attempt, err)
		}

		DebugLog("%s failed (attempt %d/%d), waiting %v: %v", what, attempt, cfg.MaxAttempts, wait, err)
		time.Sleep(wait)
		wait = min(wait*2, cfg.MaxWait)
	}
}

// RetryableOpen opens path for reading, retrying transient failures
func RetryableOpen(path string, cfg *RetryConfig) (*os.File, error) {
	return RetryWithBackoff(cfg, func() (*os.File, error) {
		return os.Open(path)
	}, "open "+path)
}

// RetryableRename renames oldpath over newpath, retrying transient failures
func RetryableRename(oldpath, newpath string, cfg *RetryConfig) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, os.Rename(oldpath, newpath)
	}, "rename "+filepath.Base(oldpath))
	return err
}
