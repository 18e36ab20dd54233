package report

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
)

// SummaryReport describes the state of one catalog
type SummaryReport struct {
	GeneratedAt time.Time

	// Totals
	Tracks      int
	Clusters    int
	Missing     int
	Duplicates  int
	TotalBytes  int64
	TotalLength float64 // seconds, tracks with a known length only
	WithLength  int

	// Details
	Formats       []FormatCount
	ClusterSizes  []SizeBucket
	DuplicateSets []DuplicateSet
	MissingTracks []TrackRef
	RecentRuns    []*history.Run

	// Metadata
	CatalogPath  string
	RawRoot      string
	SchemaVer    int
	UpdatedAt    time.Time
	EventLogPath string
}

// FormatCount counts tracks per file format
type FormatCount struct {
	Format string
	Count  int
	Bytes  int64
}

// SizeBucket counts clusters with the same number of members
type SizeBucket struct {
	Size     int
	Clusters int
}

// TrackRef identifies one track in a report
type TrackRef struct {
	TrackID    uuid.UUID
	VirtualKey string
	Path       string
	SizeBytes  int64
}

// DuplicateSet is a canonical track and its byte-identical copies
type DuplicateSet struct {
	SHA1      string
	Canonical TrackRef
	Copies    []TrackRef
}

func refOf(t *catalog.Track) TrackRef {
	return TrackRef{
		TrackID:    t.TrackID,
		VirtualKey: t.VirtualKey,
		Path:       t.OriginalPath,
		SizeBytes:  t.Fingerprint.FileSize,
	}
}

// GenerateSummaryReport builds a report from an in-memory catalog
func GenerateSummaryReport(c *catalog.Catalog, maxDuplicateSets int) *SummaryReport {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		Tracks:        len(c.Tracks),
		Clusters:      len(c.Clusters),
		RawRoot:       c.RawMusicDirectory,
		SchemaVer:     c.SchemaVersion,
		UpdatedAt:     c.UpdatedAt.Time,
		Formats:       make([]FormatCount, 0),
		ClusterSizes:  make([]SizeBucket, 0),
		DuplicateSets: make([]DuplicateSet, 0),
		MissingTracks: make([]TrackRef, 0),
	}

	formats := make(map[string]*FormatCount)
	members := make(map[uuid.UUID]int, len(c.Clusters))
	for _, cl := range c.Clusters {
		members[cl.ClusterID] = 0
	}

	for _, t := range c.Tracks {
		report.TotalBytes += t.Fingerprint.FileSize
		if t.LengthSec != nil {
			report.TotalLength += *t.LengthSec
			report.WithLength++
		}
		if t.MissingFile {
			report.Missing++
			report.MissingTracks = append(report.MissingTracks, refOf(t))
		}
		if t.DuplicateOf != nil {
			report.Duplicates++
		}

		format := t.FileFormat
		if format == "" {
			format = "unknown"
		}
		fc, ok := formats[format]
		if !ok {
			fc = &FormatCount{Format: format}
			formats[format] = fc
		}
		fc.Count++
		fc.Bytes += t.Fingerprint.FileSize

		members[t.ClusterID]++
	}

	for _, fc := range formats {
		report.Formats = append(report.Formats, *fc)
	}
	slices.SortFunc(report.Formats, func(a, b FormatCount) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return cmp.Compare(a.Format, b.Format)
	})

	sizes := make(map[int]int)
	for _, n := range members {
		sizes[n]++
	}
	for size, count := range sizes {
		report.ClusterSizes = append(report.ClusterSizes, SizeBucket{Size: size, Clusters: count})
	}
	slices.SortFunc(report.ClusterSizes, func(a, b SizeBucket) int {
		return cmp.Compare(a.Size, b.Size)
	})

	report.DuplicateSets = gatherDuplicateSets(c, maxDuplicateSets)
	return report
}

// gatherDuplicateSets groups duplicate tracks under their canonical track,
// largest sets first
func gatherDuplicateSets(c *catalog.Catalog, limit int) []DuplicateSet {
	byCanonical := make(map[uuid.UUID]*DuplicateSet)
	var order []uuid.UUID

	for _, t := range c.Tracks {
		if t.DuplicateOf == nil {
			continue
		}
		canon := c.Track(*t.DuplicateOf)
		if canon == nil {
			continue
		}
		set, ok := byCanonical[canon.TrackID]
		if !ok {
			set = &DuplicateSet{SHA1: canon.Fingerprint.SHA1, Canonical: refOf(canon)}
			byCanonical[canon.TrackID] = set
			order = append(order, canon.TrackID)
		}
		set.Copies = append(set.Copies, refOf(t))
	}

	sets := make([]DuplicateSet, 0, len(order))
	for _, id := range order {
		sets = append(sets, *byCanonical[id])
	}

	// Most copies first
	slices.SortStableFunc(sets, func(a, b DuplicateSet) int {
		return cmp.Compare(len(b.Copies), len(a.Copies))
	})

	if limit > 0 && len(sets) > limit {
		sets = sets[:limit]
	}
	return sets
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// RenderMarkdown renders the report as a Markdown document
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Audio Catalog - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.CatalogPath != "" {
		md.WriteString(fmt.Sprintf("**Catalog:** `%s`\n\n", report.CatalogPath))
	}
	if report.RawRoot != "" {
		md.WriteString(fmt.Sprintf("**Raw music:** `%s`\n\n", report.RawRoot))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Tracks | %d |\n", report.Tracks))
	md.WriteString(fmt.Sprintf("| Clusters | %d |\n", report.Clusters))
	if report.Missing > 0 {
		md.WriteString(fmt.Sprintf("| Missing Files | %d |\n", report.Missing))
	}
	if report.Duplicates > 0 {
		md.WriteString(fmt.Sprintf("| Duplicate Copies | %d |\n", report.Duplicates))
	}
	md.WriteString(fmt.Sprintf("| Total Size | %s |\n", humanize.Bytes(uint64(max(report.TotalBytes, 0)))))
	if report.WithLength > 0 {
		total := time.Duration(report.TotalLength * float64(time.Second)).Round(time.Second)
		md.WriteString(fmt.Sprintf("| Total Length | %s (%d tracks) |\n", total, report.WithLength))
	}
	if report.SchemaVer > 0 {
		md.WriteString(fmt.Sprintf("| Schema Version | %d |\n", report.SchemaVer))
	}
	md.WriteString("\n")

	if len(report.Formats) > 0 {
		md.WriteString("## 🎵 Formats\n\n")
		md.WriteString("| Format | Tracks | Size |\n")
		md.WriteString("|--------|--------|------|\n")
		for _, f := range report.Formats {
			md.WriteString(fmt.Sprintf("| %s | %d | %s |\n", f.Format, f.Count, humanize.Bytes(uint64(max(f.Bytes, 0)))))
		}
		md.WriteString("\n")
	}

	if len(report.ClusterSizes) > 0 {
		md.WriteString("## 🔗 Cluster Sizes\n\n")
		md.WriteString("| Members | Clusters |\n")
		md.WriteString("|---------|----------|\n")
		for _, b := range report.ClusterSizes {
			md.WriteString(fmt.Sprintf("| %d | %d |\n", b.Size, b.Clusters))
		}
		md.WriteString("\n")
	}

	if len(report.DuplicateSets) > 0 {
		md.WriteString("## 🔍 Duplicate Sets\n\n")
		for i, set := range report.DuplicateSets {
			md.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, set.Canonical.VirtualKey))
			md.WriteString(fmt.Sprintf("**SHA-1:** `%s` | **Copies:** %d\n\n", set.SHA1, len(set.Copies)))
			md.WriteString(fmt.Sprintf("- ✅ `%s` (%s)\n", truncatePath(set.Canonical.Path, 80), humanize.Bytes(uint64(max(set.Canonical.SizeBytes, 0)))))
			for _, cp := range set.Copies {
				md.WriteString(fmt.Sprintf("- ♻️ `%s` (%s)\n", truncatePath(cp.Path, 80), cp.VirtualKey))
			}
			md.WriteString("\n")
		}
	}

	if len(report.MissingTracks) > 0 {
		md.WriteString("## ⚠️ Missing Files\n\n")
		md.WriteString("| Virtual Key | Last Known Path |\n")
		md.WriteString("|-------------|-----------------|\n")
		for _, m := range report.MissingTracks {
			md.WriteString(fmt.Sprintf("| %s | `%s` |\n", m.VirtualKey, truncatePath(m.Path, 60)))
		}
		md.WriteString("\n")
	}

	if len(report.RecentRuns) > 0 {
		md.WriteString("## 🕑 Recent Scans\n\n")
		md.WriteString("| Started | New | Updated | Relinked | Duplicates | Missing |\n")
		md.WriteString("|---------|-----|---------|----------|------------|---------|\n")
		for _, r := range report.RecentRuns {
			md.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d |\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.New, r.Updated, r.Relinked, r.Duplicates, r.Missing))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by acat*\n")

	return md.String()
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
