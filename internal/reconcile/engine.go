// Package reconcile merges a filesystem scan into a catalog: unchanged,
// edited, moved, duplicated and new files are told apart by content hash,
// with a name-based fallback for files whose bytes changed while missing.
package reconcile

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/scan"
	"github.com/franz/audio-catalog/internal/util"
	"github.com/franz/audio-catalog/internal/vkey"
)

// Summary counts what one reconciliation pass did
type Summary struct {
	New        int `json:"new"`
	Updated    int `json:"updated"`
	Relinked   int `json:"relinked"`
	Duplicates int `json:"duplicates"`
	Missing    int `json:"missing"`

	Scan *scan.Stats `json:"-"`
}

// IsZero reports whether the pass changed nothing and nothing is missing
func (s *Summary) IsZero() bool {
	return s.New == 0 && s.Updated == 0 && s.Relinked == 0 && s.Duplicates == 0 && s.Missing == 0
}

// Options control one pass
type Options struct {
	// KeysFromFilename derives virtual keys of new tracks from their file
	// names instead of identity components. Used when bootstrapping.
	KeysFromFilename bool
}

// Engine reconciles catalogs against one raw root
type Engine struct {
	root     string
	probe    scan.ProbeFunc
	progress bool
	observer Observer
	exists   func(rel string) bool
}

// Config holds engine configuration
type Config struct {
	Root     string
	Probe    scan.ProbeFunc
	Progress bool
	Observer Observer // optional change sink
}

// New creates a new Engine
func New(cfg *Config) *Engine {
	e := &Engine{
		root:     cfg.Root,
		probe:    cfg.Probe,
		progress: cfg.Progress,
		observer: cfg.Observer,
	}
	e.exists = func(rel string) bool { return util.FileExists(e.root, rel) }
	return e
}

// Sync scans the raw root and applies the result to c. The scan runs to
// completion before c is touched, so a scan error leaves c unchanged.
func (e *Engine) Sync(ctx context.Context, c *catalog.Catalog, opts Options) (*Summary, error) {
	scanner := scan.New(&scan.Config{
		Root:     e.root,
		Prior:    scan.PriorFromCatalog(c),
		Probe:    e.probe,
		Progress: e.progress,
	})

	records, stats, err := scanner.Collect(ctx)
	if err != nil {
		return nil, err
	}

	summary := e.Apply(c, records, opts)
	summary.Scan = stats
	return summary, nil
}

// hintKey is the fallback relink key: lower-cased file and parent names
type hintKey struct {
	name   string
	parent string
}

func hintKeyFor(name, parent string) hintKey {
	return hintKey{
		name:   strings.ToLower(strings.TrimSpace(name)),
		parent: strings.ToLower(strings.TrimSpace(parent)),
	}
}

// pass holds the indexes of one reconciliation. They are derived from the
// track list and dropped when the pass ends.
type pass struct {
	e       *Engine
	c       *catalog.Catalog
	opts    Options
	summary *Summary

	byPath       map[string]*catalog.Track
	canonical    map[string]*catalog.Track // sha1 -> track with no duplicate_of
	missingHints map[hintKey][]*catalog.Track
	usedFallback map[uuid.UUID]bool
	keys         map[string]struct{}
}

// Apply merges scan records into c and returns the counts
func (e *Engine) Apply(c *catalog.Catalog, records []scan.Record, opts Options) *Summary {
	util.InfoLog("Reconciling %d files against %d tracks", len(records), len(c.Tracks))

	p := &pass{
		e:            e,
		c:            c,
		opts:         opts,
		summary:      &Summary{},
		byPath:       make(map[string]*catalog.Track, len(c.Tracks)),
		canonical:    make(map[string]*catalog.Track, len(c.Tracks)),
		missingHints: make(map[hintKey][]*catalog.Track),
		usedFallback: make(map[uuid.UUID]bool),
		keys:         c.VirtualKeys(nil),
	}

	catalog.EnsureClusters(c)
	wasMissing := p.index()

	for _, rec := range records {
		p.apply(rec)
	}

	c.NormalizeAll()
	if n := RepairDuplicateLinks(c); n > 0 {
		util.WarnLog("Repaired %d stale duplicate links", n)
	}
	catalog.EnsureClusters(c)

	for _, t := range c.Tracks {
		if !t.MissingFile {
			continue
		}
		p.summary.Missing++
		if !wasMissing[t.TrackID] {
			p.emit(Change{Kind: ChangeMissing, Track: t})
		}
	}

	s := p.summary
	util.SuccessLog("Reconcile complete: %d new, %d updated, %d relinked, %d duplicates, %d missing",
		s.New, s.Updated, s.Relinked, s.Duplicates, s.Missing)
	return s
}

// index builds the lookup maps and pre-marks every track missing. Returns
// the ids that were already missing before the pass.
func (p *pass) index() map[uuid.UUID]bool {
	wasMissing := make(map[uuid.UUID]bool)
	for _, t := range p.c.Tracks {
		catalog.BackfillPathHints(t)

		if t.OriginalPath != "" {
			p.byPath[t.OriginalPath] = t
		}
		if sha := t.Fingerprint.SHA1; sha != "" && t.DuplicateOf == nil {
			if _, ok := p.canonical[sha]; !ok {
				p.canonical[sha] = t
			}
		}

		if t.OriginalPath != "" && t.RawFileName != "" && !p.e.exists(t.OriginalPath) {
			k := hintKeyFor(t.RawFileName, t.RawParentDirName)
			p.missingHints[k] = append(p.missingHints[k], t)
		}

		if t.MissingFile {
			wasMissing[t.TrackID] = true
		}
		t.MissingFile = true
	}
	return wasMissing
}

func (p *pass) apply(rec scan.Record) {
	if t, ok := p.byPath[rec.RelPath]; ok {
		if t.Fingerprint.SHA1 == rec.SHA1 {
			p.refresh(t, rec)
		} else {
			p.rewrite(t, rec)
		}
		return
	}

	if canon, ok := p.canonical[rec.SHA1]; ok {
		if !p.e.exists(canon.OriginalPath) {
			p.move(canon, rec)
			return
		}
		p.create(rec, canon)
		return
	}

	if cand := p.fallbackCandidate(rec.RelPath); cand != nil {
		p.relinkEdited(cand, rec)
		return
	}

	p.create(rec, nil)
}

// refresh handles a known path with unchanged content
func (p *pass) refresh(t *catalog.Track, rec scan.Record) {
	t.MissingFile = false
	changed := false

	fp := t.Fingerprint
	if fp.FileSize != rec.Size || !util.SameMtime(fp.ModifiedTime, rec.ModTime) {
		t.Fingerprint.FileSize = rec.Size
		t.Fingerprint.ModifiedTime = rec.ModTime
		t.FileFormat = rec.Format
		changed = true
	}
	if t.LengthSec == nil && rec.LengthSec != nil {
		t.LengthSec = rec.LengthSec
	}

	if t.DuplicateOf == nil {
		if canon := p.canonical[rec.SHA1]; canon != nil && canon != t {
			id := canon.TrackID
			t.DuplicateOf = &id
			changed = true
		} else if canon == nil {
			p.canonical[rec.SHA1] = t
		}
	}

	if changed {
		p.summary.Updated++
		p.emit(Change{Kind: ChangeUpdated, Track: t, Reason: "fingerprint refreshed"})
	}
}

// rewrite handles a known path whose bytes changed in place
func (p *pass) rewrite(t *catalog.Track, rec scan.Record) {
	oldSHA := t.Fingerprint.SHA1
	if p.canonical[oldSHA] == t {
		delete(p.canonical, oldSHA)
	}

	t.Fingerprint = rec.Fingerprint()
	t.FileFormat = rec.Format
	t.MissingFile = false
	if rec.LengthSec != nil {
		t.LengthSec = rec.LengthSec
	}

	t.DuplicateOf = nil
	if canon := p.canonical[rec.SHA1]; canon != nil && canon != t {
		id := canon.TrackID
		t.DuplicateOf = &id
	} else {
		p.canonical[rec.SHA1] = t
	}

	p.summary.Updated++
	p.emit(Change{Kind: ChangeUpdated, Track: t, OldSHA1: oldSHA, Reason: "content changed"})
}

// move follows a canonical track whose file now lives at a new path
func (p *pass) move(t *catalog.Track, rec scan.Record) {
	oldPath := t.OriginalPath
	if p.byPath[oldPath] == t {
		delete(p.byPath, oldPath)
	}

	fp := t.Fingerprint
	fp.FileSize = rec.Size
	fp.ModifiedTime = rec.ModTime
	t.Relink(rec.RelPath, rec.Format, fp)
	if t.LengthSec == nil && rec.LengthSec != nil {
		t.LengthSec = rec.LengthSec
	}
	p.byPath[rec.RelPath] = t

	p.summary.Relinked++
	p.emit(Change{Kind: ChangeRelinked, Track: t, OldPath: oldPath, Reason: "moved"})
}

// fallbackCandidate returns the single missing track that shares the file
// and parent names of rel, or nil when there is none or the choice is
// ambiguous.
func (p *pass) fallbackCandidate(rel string) *catalog.Track {
	name, parent := util.PathHints(rel)
	var cands []*catalog.Track
	for _, t := range p.missingHints[hintKeyFor(name, parent)] {
		if p.usedFallback[t.TrackID] || !t.MissingFile || p.e.exists(t.OriginalPath) {
			continue
		}
		cands = append(cands, t)
	}

	var canon []*catalog.Track
	for _, t := range cands {
		if t.DuplicateOf == nil {
			canon = append(canon, t)
		}
	}

	switch {
	case len(canon) == 1:
		return canon[0]
	case len(cands) == 1:
		return cands[0]
	case len(cands) > 1:
		util.DebugLog("Fallback relink for %s is ambiguous (%d candidates), creating a new track", rel, len(cands))
	}
	return nil
}

// relinkEdited moves a missing track onto a file with the same name whose
// bytes differ
func (p *pass) relinkEdited(t *catalog.Track, rec scan.Record) {
	oldPath := t.OriginalPath
	oldSHA := t.Fingerprint.SHA1
	if p.byPath[oldPath] == t {
		delete(p.byPath, oldPath)
	}
	if p.canonical[oldSHA] == t {
		delete(p.canonical, oldSHA)
	}

	t.Relink(rec.RelPath, rec.Format, rec.Fingerprint())
	if rec.LengthSec != nil {
		t.LengthSec = rec.LengthSec
	}

	// No canonical exists for the new content, so this track becomes it
	t.DuplicateOf = nil
	p.canonical[rec.SHA1] = t
	p.byPath[rec.RelPath] = t
	p.usedFallback[t.TrackID] = true

	p.summary.Relinked++
	p.emit(Change{Kind: ChangeRelinked, Track: t, OldPath: oldPath, OldSHA1: oldSHA, Reason: "name match"})
}

// create adds a track for a file the catalog has never seen. A non-nil
// canon marks it as a duplicate copy.
func (p *pass) create(rec scan.Record, canon *catalog.Track) {
	var key string
	if p.opts.KeysFromFilename {
		key = vkey.FromFilename(path.Base(rec.RelPath), p.keys)
	} else {
		// New tracks have no identity selection yet
		key = vkey.FromParts("", "", "", "", p.keys)
	}
	p.keys[key] = struct{}{}

	cl := catalog.NewCluster(key)
	p.c.Clusters = append(p.c.Clusters, cl)

	t := &catalog.Track{
		TrackID:    uuid.New(),
		ClusterID:  cl.ClusterID,
		VirtualKey: key,
		Tags:       p.c.NewTrackTags(),
		Scales:     p.c.NewTrackScales(),
		LengthSec:  rec.LengthSec,
	}
	t.Relink(rec.RelPath, rec.Format, rec.Fingerprint())

	p.c.Tracks = append(p.c.Tracks, t)
	p.byPath[rec.RelPath] = t

	if canon != nil {
		id := canon.TrackID
		t.DuplicateOf = &id
		p.summary.Duplicates++
		p.emit(Change{Kind: ChangeDuplicate, Track: t})
		return
	}

	p.canonical[rec.SHA1] = t
	p.summary.New++
	p.emit(Change{Kind: ChangeNew, Track: t})
}

func (p *pass) emit(ch Change) {
	if p.e.observer != nil {
		p.e.observer(ch)
	}
}

// RepairDuplicateLinks re-points every duplicate_of that no longer names a
// track with the same content at the current canonical of its hash, or
// clears it when there is none. Returns the number of links changed.
func RepairDuplicateLinks(c *catalog.Catalog) int {
	byID := make(map[uuid.UUID]*catalog.Track, len(c.Tracks))
	canonical := make(map[string]*catalog.Track)
	for _, t := range c.Tracks {
		byID[t.TrackID] = t
		if t.DuplicateOf == nil {
			if _, ok := canonical[t.Fingerprint.SHA1]; !ok {
				canonical[t.Fingerprint.SHA1] = t
			}
		}
	}

	repaired := 0
	for _, t := range c.Tracks {
		if t.DuplicateOf == nil {
			continue
		}
		target := byID[*t.DuplicateOf]
		if target != nil && target != t && target.Fingerprint.SHA1 == t.Fingerprint.SHA1 {
			continue
		}

		repaired++
		if canon := canonical[t.Fingerprint.SHA1]; canon != nil && canon != t {
			id := canon.TrackID
			t.DuplicateOf = &id
			util.DebugLog("Duplicate link of %s re-pointed to %s", t.VirtualKey, canon.VirtualKey)
			continue
		}
		t.DuplicateOf = nil
		canonical[t.Fingerprint.SHA1] = t
		util.DebugLog("Duplicate link of %s cleared", t.VirtualKey)
	}
	return repaired
}

// String renders the summary the way the CLI prints it
func (s *Summary) String() string {
	return fmt.Sprintf("new=%d updated=%d relinked=%d duplicates=%d missing=%d",
		s.New, s.Updated, s.Relinked, s.Duplicates, s.Missing)
}
