// Package probe reads audio properties the catalog treats as best-effort:
// duration through ffprobe and embedded tags through dhowden/tag.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/franz/audio-catalog/internal/util"
)

// Timeout bounds a single ffprobe run
const Timeout = 30 * time.Second

// FFprobeInfo represents the output from ffprobe
type FFprobeInfo struct {
	Streams []FFprobeStream `json:"streams"`
	Format  *FFprobeFormat  `json:"format"`
}

// Seconds can unmarshal durations given as numbers or strings from JSON.
// "N/A" and unparsable values decode to zero.
type Seconds struct {
	Value float64
}

// UnmarshalJSON implements custom unmarshaling for Seconds
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		s.Value = f
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		s.Value = 0
		return nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		s.Value = 0
		return nil
	}
	s.Value = parsed
	return nil
}

// FFprobeStream represents an audio stream
type FFprobeStream struct {
	Index     int     `json:"index"`
	CodecName string  `json:"codec_name"`
	CodecType string  `json:"codec_type"`
	Channels  int     `json:"channels"`
	Duration  Seconds `json:"duration"`
}

// FFprobeFormat represents container format metadata
type FFprobeFormat struct {
	Filename   string  `json:"filename"`
	FormatName string  `json:"format_name"`
	Duration   Seconds `json:"duration"`
}

// Duration returns the best duration in seconds: the container's, falling
// back to the first audio stream's.
func (info *FFprobeInfo) Duration() (float64, bool) {
	if info.Format != nil && info.Format.Duration.Value > 0 {
		return info.Format.Duration.Value, true
	}
	for _, s := range info.Streams {
		if s.CodecType == "audio" && s.Duration.Value > 0 {
			return s.Duration.Value, true
		}
	}
	return 0, false
}

// ParseFFprobe decodes ffprobe JSON output
func ParseFFprobe(output []byte) (*FFprobeInfo, error) {
	var info FFprobeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &info, nil
}

// RunFFprobe executes ffprobe and parses the JSON output
func RunFFprobe(ctx context.Context, path string) (*FFprobeInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe: %w", util.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return ParseFFprobe(output)
}

// CheckFFprobeAvailable checks if ffprobe is available in PATH
func CheckFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// DurationProbe returns a probe function for the scanner. Failures are
// logged at debug level and reported as unknown. When ffprobe is missing the
// returned function never runs it.
func DurationProbe() func(path string) (float64, bool) {
	if !CheckFFprobeAvailable() {
		util.DebugLog("ffprobe not found, durations will be left unknown")
		return func(string) (float64, bool) { return 0, false }
	}

	return func(path string) (float64, bool) {
		info, err := RunFFprobe(context.Background(), path)
		if err != nil {
			util.DebugLog("Duration probe failed for %s: %v", path, err)
			return 0, false
		}
		return info.Duration()
	}
}
