package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/store"
)

func TestCheckFFprobe(t *testing.T) {
	result := checkFFprobe()

	// ffprobe is optional, so a missing binary is a warning at most
	if result.error {
		t.Errorf("ffprobe check should not error, got: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected a message")
	}
}

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckRawDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.mp3")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		wantError bool
	}{
		{"not configured", "", true},
		{"missing", filepath.Join(dir, "nope"), true},
		{"file not dir", file, true},
		{"readable", dir, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := checkRawDirectory(tc.path)
			if result.error != tc.wantError {
				t.Errorf("error = %v (%s), expected %v", result.error, result.message, tc.wantError)
			}
		})
	}
}

func writeCatalog(t *testing.T, path string, c *catalog.Catalog) {
	t.Helper()
	data, err := store.Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testTrack(rel, key string, missing bool) *catalog.Track {
	return &catalog.Track{
		TrackID:      uuid.New(),
		ClusterID:    uuid.New(),
		OriginalPath: rel,
		FileFormat:   "mp3",
		VirtualKey:   key,
		Fingerprint:  catalog.Fingerprint{SHA1: "abc", FileSize: 10},
		Tags:         map[string][]string{},
		Scales:       catalog.ScaleValues{},
		MissingFile:  missing,
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()

	healthy := catalog.New(dir)
	healthy.Tracks = append(healthy.Tracks, testTrack("a.mp3", "a", false))
	healthyPath := filepath.Join(dir, "healthy.json")
	writeCatalog(t, healthyPath, healthy)

	withMissing := catalog.New(dir)
	withMissing.Tracks = append(withMissing.Tracks, testTrack("gone.mp3", "gone", true))
	missingPath := filepath.Join(dir, "missing.json")
	writeCatalog(t, missingPath, withMissing)

	dupKeys := catalog.New(dir)
	dupKeys.Tracks = append(dupKeys.Tracks, testTrack("a.mp3", "same", false), testTrack("b.mp3", "same", false))
	dupPath := filepath.Join(dir, "dup.json")
	writeCatalog(t, dupPath, dupKeys)

	garbagePath := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbagePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		path        string
		wantError   bool
		wantWarning bool
		wantMessage string
	}{
		{"not configured", "", true, false, "not configured"},
		{"not created yet", filepath.Join(dir, "new.json"), false, false, "will be created"},
		{"healthy", healthyPath, false, false, "1 tracks"},
		{"missing files", missingPath, false, true, "1 tracks missing"},
		{"duplicate keys", dupPath, false, true, "duplicate virtual_key"},
		{"not json", garbagePath, true, false, "invalid catalog"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := checkCatalog(tc.path)
			if result.error != tc.wantError {
				t.Errorf("error = %v (%s), expected %v", result.error, result.message, tc.wantError)
			}
			if result.warning != tc.wantWarning {
				t.Errorf("warning = %v (%s), expected %v", result.warning, result.message, tc.wantWarning)
			}
			if !strings.Contains(result.message, tc.wantMessage) {
				t.Errorf("message %q does not contain %q", result.message, tc.wantMessage)
			}
		})
	}
}

func TestCheckHistory_NonExistent(t *testing.T) {
	result := checkHistory(filepath.Join(t.TempDir(), "nonexistent.db"))

	// Should not error - database will be created on first run
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}
	if !strings.Contains(result.message, "will be created") {
		t.Errorf("unexpected message %q", result.message)
	}
}

func TestCheckHistory_Disabled(t *testing.T) {
	result := checkHistory("")
	if result.error || !result.warning {
		t.Errorf("disabled history should warn, got %+v", result)
	}
}

func TestCheckHistory_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	ledger, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	run := &history.Run{RawRoot: "/music"}
	if err := ledger.StartRun(run); err != nil {
		t.Fatal(err)
	}
	if err := ledger.FinishRun(run); err != nil {
		t.Fatal(err)
	}
	ledger.Close()

	result := checkHistory(dbPath)
	if result.error {
		t.Errorf("existing database check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "last run") {
		t.Errorf("expected last run in message, got %q", result.message)
	}
}

func TestCheckHistory_NotAFile(t *testing.T) {
	result := checkHistory(t.TempDir())
	if !result.error {
		t.Errorf("directory should fail the history check, got %+v", result)
	}
}
