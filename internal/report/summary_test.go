package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
)

// testCatalog builds a catalog with one duplicate set, one missing track
// and clusters of sizes 0, 1 and 3
func testCatalog() *catalog.Catalog {
	c := catalog.New("/raw")
	big := catalog.NewCluster("battle")
	single := catalog.NewCluster("menu")
	empty := catalog.NewCluster("empty")
	c.Clusters = append(c.Clusters, big, single, empty)

	length := 90.0
	add := func(cl *catalog.Cluster, path, key, format, sha string, size int64) *catalog.Track {
		t := &catalog.Track{
			TrackID:      uuid.New(),
			ClusterID:    cl.ClusterID,
			OriginalPath: path,
			FileFormat:   format,
			VirtualKey:   key,
			Fingerprint:  catalog.Fingerprint{SHA1: sha, FileSize: size},
		}
		c.Tracks = append(c.Tracks, t)
		return t
	}

	canon := add(big, "A/battle.ogg", "battle", "ogg", "aaa", 1000)
	canon.LengthSec = &length
	dup := add(big, "B/battle_copy.ogg", "battle_copy", "ogg", "aaa", 1000)
	dup.DuplicateOf = &canon.TrackID
	gone := add(big, "C/battle_alt.wav", "battle_alt", "wav", "bbb", 5000)
	gone.MissingFile = true
	add(single, "menu.mp3", "menu", "mp3", "ccc", 200)

	return c
}

func TestGenerateSummaryReport(t *testing.T) {
	c := testCatalog()
	report := GenerateSummaryReport(c, 20)

	if report.Tracks != 4 || report.Clusters != 3 {
		t.Errorf("totals = %d tracks, %d clusters", report.Tracks, report.Clusters)
	}
	if report.Missing != 1 || report.Duplicates != 1 {
		t.Errorf("missing=%d duplicates=%d", report.Missing, report.Duplicates)
	}
	if report.TotalBytes != 7200 || report.WithLength != 1 || report.TotalLength != 90 {
		t.Errorf("bytes=%d length=%v (%d)", report.TotalBytes, report.TotalLength, report.WithLength)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("Expected GeneratedAt to be set")
	}

	if len(report.Formats) != 3 || report.Formats[0].Format != "ogg" || report.Formats[0].Count != 2 {
		t.Errorf("formats = %+v", report.Formats)
	}

	want := []SizeBucket{{0, 1}, {1, 1}, {3, 1}}
	if len(report.ClusterSizes) != len(want) {
		t.Fatalf("cluster sizes = %+v", report.ClusterSizes)
	}
	for i, b := range want {
		if report.ClusterSizes[i] != b {
			t.Errorf("bucket %d = %+v, expected %+v", i, report.ClusterSizes[i], b)
		}
	}

	if len(report.MissingTracks) != 1 || report.MissingTracks[0].VirtualKey != "battle_alt" {
		t.Errorf("missing tracks = %+v", report.MissingTracks)
	}
}

func TestGatherDuplicateSets(t *testing.T) {
	c := testCatalog()
	canon := c.Tracks[0]

	// A second set with two copies should sort first
	other := &catalog.Track{TrackID: uuid.New(), VirtualKey: "x", Fingerprint: catalog.Fingerprint{SHA1: "zzz"}}
	c.Tracks = append(c.Tracks, other)
	for i := 0; i < 2; i++ {
		c.Tracks = append(c.Tracks, &catalog.Track{
			TrackID:     uuid.New(),
			VirtualKey:  "x_copy",
			Fingerprint: catalog.Fingerprint{SHA1: "zzz"},
			DuplicateOf: &other.TrackID,
		})
	}
	// Dangling links are skipped
	ghost := uuid.New()
	c.Tracks = append(c.Tracks, &catalog.Track{TrackID: uuid.New(), DuplicateOf: &ghost})

	sets := gatherDuplicateSets(c, 0)
	if len(sets) != 2 {
		t.Fatalf("sets = %d, expected 2", len(sets))
	}
	if sets[0].Canonical.TrackID != other.TrackID || len(sets[0].Copies) != 2 {
		t.Errorf("first set = %+v", sets[0])
	}
	if sets[1].Canonical.TrackID != canon.TrackID || sets[1].SHA1 != "aaa" {
		t.Errorf("second set = %+v", sets[1])
	}

	if limited := gatherDuplicateSets(c, 1); len(limited) != 1 {
		t.Errorf("limit not applied: %d sets", len(limited))
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "reports", "summary.md")

	report := GenerateSummaryReport(testCatalog(), 20)
	report.CatalogPath = "/data/catalog.json"
	report.EventLogPath = "/data/events.jsonl"
	report.RecentRuns = []*history.Run{
		{StartedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC), New: 4, Missing: 1},
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	contentStr := string(content)

	expected := []string{
		"# Audio Catalog - Summary Report",
		"`/data/catalog.json`",
		"| Tracks | 4 |",
		"| Missing Files | 1 |",
		"| ogg | 2 |",
		"| 3 | 1 |",
		"### 1. battle",
		"`B/battle_copy.ogg`",
		"| battle_alt | `C/battle_alt.wav` |",
		"| 2025-03-01 12:30 | 4 |",
		"| Total Length | 1m30s (1 tracks) |",
	}
	for _, s := range expected {
		if !strings.Contains(contentStr, s) {
			t.Errorf("Report missing %q", s)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		maxLen int
	}{
		{"Short path - no truncation", "/music/song.mp3", 50},
		{"Long path - truncate middle", "/very/long/path/to/some/music/collection/artist/album/song.mp3", 30},
		{"Exactly at limit", "/music/test.mp3", 15},
		{"Very long path", "/extremely/long/path/that/needs/significant/truncation/to/fit/within/limits/file.mp3", 40},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := truncatePath(tc.path, tc.maxLen)

			if len(result) > tc.maxLen {
				t.Errorf("Result length %d exceeds maxLen %d", len(result), tc.maxLen)
			}
			if len(tc.path) > tc.maxLen && !strings.Contains(result, "...") {
				t.Error("Expected truncated path to contain '...'")
			}
			if len(tc.path) <= tc.maxLen && result != tc.path {
				t.Errorf("Short path should not be truncated: expected '%s', got '%s'", tc.path, result)
			}
		})
	}
}

func TestReportWithEmptyCatalog(t *testing.T) {
	report := GenerateSummaryReport(catalog.New("/raw"), 20)
	if report.Tracks != 0 || len(report.DuplicateSets) != 0 || len(report.ClusterSizes) != 0 {
		t.Errorf("empty report = %+v", report)
	}

	outputPath := filepath.Join(t.TempDir(), "empty-summary.md")
	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed on empty data: %v", err)
	}
	content, _ := os.ReadFile(outputPath)
	if !strings.Contains(string(content), "Generated by") {
		t.Error("Report missing footer")
	}
	if strings.Contains(string(content), "Duplicate Sets") {
		t.Error("empty report should not list duplicates")
	}
}
