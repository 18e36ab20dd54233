package util

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// HashChunkSize is the read size used when streaming file content into the hash
const HashChunkSize = 1024 * 1024

// ContentHash returns the hex SHA-1 of the whole file, streamed in
// HashChunkSize reads. SHA-1 identifies duplicates exactly; collisions between
// different audio files are not handled.
func ContentHash(path string) (string, error) {
	f, err := RetryableOpen(path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, HashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileStat returns size and modification time (epoch seconds, sub-second
// precision) for a file.
func FileStat(path string) (size int64, mtime float64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat file: %w", err)
	}

	return info.Size(), EpochSeconds(info.ModTime()), nil
}

// EpochSeconds converts a time to fractional seconds since the Unix epoch
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// SameMtime compares two epoch-second timestamps with sub-microsecond tolerance
func SameMtime(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
