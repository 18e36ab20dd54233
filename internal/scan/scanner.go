package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/util"
)

// AudioExtensions are the file extensions treated as audio
var AudioExtensions = []string{
	".mp3",
	".ogg",
	".wav",
	".flac",
	".m4a",
	".aac",
}

// Record describes one audio file found under the root
type Record struct {
	RelPath   string // POSIX, relative to the root
	SHA1      string
	Size      int64
	ModTime   float64 // epoch seconds
	Format    string  // lowercase extension without the dot
	LengthSec *float64
	Cached    bool // hash reused from the prior fingerprint
}

// Fingerprint returns the record's fingerprint
func (r Record) Fingerprint() catalog.Fingerprint {
	return catalog.Fingerprint{SHA1: r.SHA1, FileSize: r.Size, ModifiedTime: r.ModTime}
}

// ProbeFunc returns a file's duration in seconds. ok is false when unknown.
type ProbeFunc func(path string) (seconds float64, ok bool)

// Prior is what the catalog already knows about a path
type Prior struct {
	Fingerprint catalog.Fingerprint
	HasLength   bool
}

// PriorFunc returns the last known state of a relative path
type PriorFunc func(rel string) (Prior, bool)

// Scanner walks a raw root and fingerprints its audio files
type Scanner struct {
	root       string
	prior      PriorFunc
	probe      ProbeFunc
	extensions map[string]bool
	progress   bool
}

// Config holds scanner configuration
type Config struct {
	Root     string
	Prior    PriorFunc // optional hash and duration cache
	Probe    ProbeFunc // optional duration probe
	Progress bool      // show a progress bar on a terminal
}

// Stats summarizes the work of one scan
type Stats struct {
	Files       int
	Hashed      int
	Cached      int
	BytesHashed int64
	Duration    time.Duration
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	extMap := make(map[string]bool, len(AudioExtensions))
	for _, ext := range AudioExtensions {
		extMap[ext] = true
	}

	return &Scanner{
		root:       cfg.Root,
		prior:      cfg.Prior,
		probe:      cfg.Probe,
		extensions: extMap,
		progress:   cfg.Progress,
	}
}

// PriorFromCatalog builds a hash cache from the tracks of a catalog
func PriorFromCatalog(c *catalog.Catalog) PriorFunc {
	byPath := make(map[string]Prior, len(c.Tracks))
	for _, t := range c.Tracks {
		if t.OriginalPath != "" && t.Fingerprint.SHA1 != "" {
			byPath[t.OriginalPath] = Prior{Fingerprint: t.Fingerprint, HasLength: t.LengthSec != nil}
		}
	}
	return func(rel string) (Prior, bool) {
		p, ok := byPath[rel]
		return p, ok
	}
}

// Records lazily yields one record per audio file in walk order. The first
// error ends the sequence.
func (s *Scanner) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		info, err := os.Stat(s.root)
		if err != nil {
			yield(Record{}, fmt.Errorf("failed to access raw root: %w", err))
			return
		}
		if !info.IsDir() {
			yield(Record{}, fmt.Errorf("raw root %s is not a directory", s.root))
			return
		}

		var bar *progressbar.ProgressBar
		if s.progress && util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
			bar = progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("Scanning"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("files"),
				progressbar.OptionThrottle(200*time.Millisecond),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetRenderBlankState(true),
			)
			defer bar.Finish()
		}

		errStop := errors.New("stop")
		walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf("access error: %s: %w", path, err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			// Symlinks and other special files are skipped
			if d.IsDir() || !d.Type().IsRegular() || !s.isAudioFile(path) {
				return nil
			}

			rec, err := s.fingerprint(path)
			if err != nil {
				return err
			}
			if bar != nil {
				bar.Add(1)
			}
			if !yield(rec, nil) {
				return errStop
			}
			return nil
		})

		if walkErr != nil && !errors.Is(walkErr, errStop) {
			yield(Record{}, walkErr)
		}
	}
}

// Collect runs a full scan and returns every record. Nothing is returned on
// error so callers never reconcile against a partial tree.
func (s *Scanner) Collect(ctx context.Context) ([]Record, *Stats, error) {
	util.InfoLog("Starting scan of: %s", s.root)
	start := time.Now()

	stats := &Stats{}
	var records []Record
	for rec, err := range s.Records(ctx) {
		if err != nil {
			return nil, nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, rec)
		stats.Files++
		if rec.Cached {
			stats.Cached++
		} else {
			stats.Hashed++
			stats.BytesHashed += rec.Size
		}
	}
	stats.Duration = time.Since(start)

	util.SuccessLog("Scan complete: %d audio files, %d hashed (%s), %d cached in %s",
		stats.Files, stats.Hashed, humanize.Bytes(uint64(stats.BytesHashed)), stats.Cached,
		stats.Duration.Round(time.Millisecond))

	return records, stats, nil
}

// fingerprint stats, hashes and probes one file
func (s *Scanner) fingerprint(path string) (Record, error) {
	rel, err := util.RelPOSIX(s.root, path)
	if err != nil {
		return Record{}, err
	}

	size, mtime, err := util.FileStat(path)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", rel, err)
	}

	rec := Record{
		RelPath: rel,
		Size:    size,
		ModTime: mtime,
		Format:  strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	knownLength := false
	if s.prior != nil {
		if p, ok := s.prior(rel); ok && p.Fingerprint.FileSize == size && util.SameMtime(p.Fingerprint.ModifiedTime, mtime) {
			rec.SHA1 = p.Fingerprint.SHA1
			rec.Cached = true
			knownLength = p.HasLength
		}
	}
	if !rec.Cached {
		sum, err := util.ContentHash(path)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", rel, err)
		}
		rec.SHA1 = sum
	}

	// Unchanged files with a known duration are not probed again
	if s.probe != nil && !knownLength {
		if secs, ok := s.probe(path); ok {
			rec.LengthSec = &secs
		}
	}

	util.DebugLog("Scanned: %s (%s, sha1 %s, cached=%v)", rel, humanize.Bytes(uint64(size)), rec.SHA1[:min(8, len(rec.SHA1))], rec.Cached)
	return rec, nil
}

// isAudioFile checks if a file has a supported audio extension
func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}
