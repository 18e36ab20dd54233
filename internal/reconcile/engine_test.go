package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func moveFile(t *testing.T, root, from, to string) {
	t.Helper()
	dst := filepath.Join(root, filepath.FromSlash(to))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(root, filepath.FromSlash(from)), dst); err != nil {
		t.Fatal(err)
	}
}

func removeFile(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

// bootstrap scans root into a fresh catalog with filename keys
func bootstrap(t *testing.T, root string) (*catalog.Catalog, *Engine) {
	t.Helper()
	c := catalog.New(root)
	e := New(&Config{Root: root})
	if _, err := e.Sync(context.Background(), c, Options{KeysFromFilename: true}); err != nil {
		t.Fatalf("bootstrap sync failed: %v", err)
	}
	return c, e
}

func sync(t *testing.T, e *Engine, c *catalog.Catalog) *Summary {
	t.Helper()
	s, err := e.Sync(context.Background(), c, Options{})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	return s
}

func TestSync_Bootstrap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Pack1/track_01.mp3", "dummy audio one")
	writeFile(t, root, "Pack2/nested/track_02.ogg", "dummy audio two")

	c := catalog.New(root)
	e := New(&Config{Root: root})
	s, err := e.Sync(context.Background(), c, Options{KeysFromFilename: true})
	if err != nil {
		t.Fatal(err)
	}

	if s.New != 2 || s.Updated != 0 || s.Relinked != 0 || s.Duplicates != 0 || s.Missing != 0 {
		t.Errorf("summary = %s", s)
	}
	if len(c.Tracks) != 2 || len(c.Clusters) != 2 {
		t.Fatalf("tracks=%d clusters=%d", len(c.Tracks), len(c.Clusters))
	}

	keys := map[string]*catalog.Track{}
	for _, tr := range c.Tracks {
		keys[tr.VirtualKey] = tr
		if tr.MissingFile {
			t.Errorf("%s should not be missing", tr.VirtualKey)
		}
		if c.Cluster(tr.ClusterID) == nil || c.Cluster(tr.ClusterID).Name != tr.VirtualKey {
			t.Errorf("%s should own a cluster named after its key", tr.VirtualKey)
		}
	}
	t2 := keys["track_02"]
	if keys["track_01"] == nil || t2 == nil {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if t2.OriginalPath != "Pack2/nested/track_02.ogg" || t2.FileFormat != "ogg" {
		t.Errorf("track_02 = %s (%s)", t2.OriginalPath, t2.FileFormat)
	}
	if t2.RawFileName != "track_02.ogg" || t2.RawParentDirName != "nested" {
		t.Errorf("hints = (%s, %s)", t2.RawFileName, t2.RawParentDirName)
	}
	for _, name := range c.Vocab.OrderedScales() {
		if _, ok := t2.Scales[name]; !ok {
			t.Errorf("scale %s not initialized", name)
		}
	}
}

func TestSync_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Pack1/track_01.mp3", "dummy audio one")
	writeFile(t, root, "Pack2/nested/track_02.ogg", "dummy audio two")
	writeFile(t, root, "Pack2/copy.ogg", "dummy audio two")

	c, e := bootstrap(t, root)
	before, _ := json.Marshal(c)

	s := sync(t, e, c)
	if !s.IsZero() {
		t.Errorf("second pass should be all zero, got %s", s)
	}
	if s.Scan.Cached != 3 {
		t.Errorf("unchanged files should reuse hashes, cached=%d", s.Scan.Cached)
	}

	after, _ := json.Marshal(c)
	if !bytes.Equal(before, after) {
		t.Errorf("catalog changed on idempotent pass:\n%s\n%s", before, after)
	}
}

func TestSync_ContentPreservingMove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Pack1/battle.wav", "battle bytes")
	c, e := bootstrap(t, root)
	orig := *c.Tracks[0]

	moveFile(t, root, "Pack1/battle.wav", "Sorted/Combat/battle_theme.wav")
	s := sync(t, e, c)

	if s.Relinked != 1 || s.New != 0 || s.Missing != 0 {
		t.Errorf("summary = %s", s)
	}
	if len(c.Tracks) != 1 {
		t.Fatalf("tracks = %d", len(c.Tracks))
	}
	tr := c.Tracks[0]
	if tr.TrackID != orig.TrackID || tr.VirtualKey != orig.VirtualKey {
		t.Error("moved track must keep id and key")
	}
	if tr.OriginalPath != "Sorted/Combat/battle_theme.wav" || tr.RawParentDirName != "Combat" {
		t.Errorf("path = %s, parent = %s", tr.OriginalPath, tr.RawParentDirName)
	}
}

func TestSync_DuplicateDetection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A/loop.ogg", "same bytes")
	c, e := bootstrap(t, root)
	canon := c.Tracks[0]

	writeFile(t, root, "B/loop_copy.ogg", "same bytes")
	s := sync(t, e, c)
	if s.Duplicates != 1 || s.New != 0 {
		t.Errorf("summary = %s", s)
	}
	if len(c.Tracks) != 2 {
		t.Fatalf("tracks = %d", len(c.Tracks))
	}
	dup := c.Tracks[1]
	if dup.DuplicateOf == nil || *dup.DuplicateOf != canon.TrackID {
		t.Fatalf("duplicate_of = %v, expected %s", dup.DuplicateOf, canon.TrackID)
	}
	if canon.DuplicateOf != nil {
		t.Error("canonical must not be a duplicate")
	}
	if dup.ClusterID == canon.ClusterID {
		t.Error("duplicate should get its own cluster")
	}
	if dup.VirtualKey != "unk_unk_unk_unk_001" {
		t.Errorf("steady-state key = %s", dup.VirtualKey)
	}

	if _, cleared, err := c.DeleteTrack(canon.TrackID); err != nil || cleared != 1 {
		t.Fatalf("delete canonical: cleared=%d err=%v", cleared, err)
	}
	if dup.DuplicateOf != nil {
		t.Error("deleting the canonical should clear duplicate_of")
	}
}

func TestSync_SameContentAtKnownPathsLinked(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.wav", "x")
	writeFile(t, root, "b.wav", "x")
	c, e := bootstrap(t, root)
	if len(c.Tracks) != 2 || c.Tracks[1].DuplicateOf == nil {
		t.Fatal("bootstrap should already link the second copy")
	}

	// Simulate a hand-edited catalog with the link removed
	c.Tracks[1].DuplicateOf = nil
	s := sync(t, e, c)
	if s.Updated != 1 {
		t.Errorf("summary = %s", s)
	}
	if c.Tracks[1].DuplicateOf == nil || *c.Tracks[1].DuplicateOf != c.Tracks[0].TrackID {
		t.Error("known path with canonical content should be linked")
	}
}

func TestSync_FallbackRelink(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Old/Pack/song.wav", "version one")
	c, e := bootstrap(t, root)
	orig := *c.Tracks[0]

	removeFile(t, root, "Old/Pack/song.wav")
	writeFile(t, root, "New/Pack/song.wav", "version two, remastered")

	var changes []Change
	e.observer = func(ch Change) { changes = append(changes, ch) }

	s := sync(t, e, c)
	if s.Relinked != 1 || s.New != 0 || s.Missing != 0 {
		t.Errorf("summary = %s", s)
	}
	tr := c.Tracks[0]
	if tr.TrackID != orig.TrackID || tr.OriginalPath != "New/Pack/song.wav" {
		t.Errorf("track = %s at %s", tr.TrackID, tr.OriginalPath)
	}
	if tr.Fingerprint.SHA1 == orig.Fingerprint.SHA1 {
		t.Error("fingerprint should follow the new bytes")
	}
	if len(changes) != 1 || changes[0].Kind != ChangeRelinked || changes[0].OldSHA1 != orig.Fingerprint.SHA1 {
		t.Errorf("changes = %+v", changes)
	}
}

func TestSync_AmbiguousFallbackCreatesNew(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A/Pack/song.wav", "first")
	writeFile(t, root, "C/Pack/song.wav", "second")
	c, e := bootstrap(t, root)

	removeFile(t, root, "A/Pack/song.wav")
	removeFile(t, root, "C/Pack/song.wav")
	writeFile(t, root, "B/Pack/song.wav", "third")

	s := sync(t, e, c)
	if s.New != 1 || s.Relinked != 0 || s.Missing != 2 {
		t.Errorf("summary = %s", s)
	}
	if len(c.Tracks) != 3 {
		t.Errorf("tracks = %d", len(c.Tracks))
	}
}

func TestSync_FallbackPrefersUniqueCanonical(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A/Pack/song.wav", "same")
	writeFile(t, root, "C/Pack/song.wav", "same")
	c, e := bootstrap(t, root)
	canon := c.Tracks[0]
	if c.Tracks[1].DuplicateOf == nil {
		t.Fatal("expected second copy to be a duplicate")
	}

	removeFile(t, root, "A/Pack/song.wav")
	removeFile(t, root, "C/Pack/song.wav")
	writeFile(t, root, "B/Pack/song.wav", "edited")

	s := sync(t, e, c)
	if s.Relinked != 1 || s.New != 0 || s.Missing != 1 {
		t.Errorf("summary = %s", s)
	}
	if canon.OriginalPath != "B/Pack/song.wav" {
		t.Errorf("canonical should be relinked, got %s", canon.OriginalPath)
	}
	// The old duplicate lost its content match
	if c.Tracks[1].DuplicateOf != nil {
		t.Error("stale duplicate link should be cleared")
	}
}

func TestSync_InPlaceEdit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.wav", "short")
	c, e := bootstrap(t, root)
	orig := *c.Tracks[0]

	writeFile(t, root, "a.wav", "a much longer edit")
	s := sync(t, e, c)
	if s.Updated != 1 || s.New != 0 {
		t.Errorf("summary = %s", s)
	}
	tr := c.Tracks[0]
	if tr.TrackID != orig.TrackID || tr.Fingerprint.SHA1 == orig.Fingerprint.SHA1 {
		t.Error("in-place edit should update the same track")
	}
	if tr.Fingerprint.FileSize != int64(len("a much longer edit")) {
		t.Errorf("size = %d", tr.Fingerprint.FileSize)
	}
}

func TestSync_MissingTracked(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.wav", "a")
	writeFile(t, root, "b.wav", "b")
	c, e := bootstrap(t, root)

	removeFile(t, root, "b.wav")

	var missing int
	e.observer = func(ch Change) {
		if ch.Kind == ChangeMissing {
			missing++
		}
	}

	s := sync(t, e, c)
	if s.Missing != 1 || len(c.Tracks) != 2 {
		t.Errorf("summary = %s, tracks = %d", s, len(c.Tracks))
	}
	if !c.Tracks[1].MissingFile || c.Tracks[0].MissingFile {
		t.Error("only b.wav should be missing")
	}

	sync(t, e, c)
	if missing != 1 {
		t.Errorf("missing change should be emitted once, got %d", missing)
	}

	writeFile(t, root, "b.wav", "b")
	s = sync(t, e, c)
	if s.Missing != 0 || c.Tracks[1].MissingFile {
		t.Errorf("restored file should clear missing, summary = %s", s)
	}
}

func TestSync_ScanErrorLeavesCatalog(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.wav", "a")
	c, _ := bootstrap(t, root)
	before, _ := json.Marshal(c)

	e := New(&Config{Root: filepath.Join(root, "gone")})
	if _, err := e.Sync(context.Background(), c, Options{}); err == nil {
		t.Fatal("expected scan error")
	}
	after, _ := json.Marshal(c)
	if !bytes.Equal(before, after) {
		t.Error("failed scan must not mutate the catalog")
	}
}

func TestSync_NormalizesUnscannedTracks(t *testing.T) {
	root := t.TempDir()
	c := catalog.New(root)
	c.Aliases = map[string]string{"chill": "calm"}
	gone := &catalog.Track{
		TrackID:      uuid.New(),
		OriginalPath: "gone.wav",
		VirtualKey:   "gone",
		Fingerprint:  catalog.Fingerprint{SHA1: "x"},
		Tags:         map[string][]string{catalog.GroupMoods: {"Chill", "calm"}},
		Scales:       catalog.ScaleValues{"energy": 50},
	}
	c.Tracks = append(c.Tracks, gone)

	s := sync(t, New(&Config{Root: root}), c)
	if s.Missing != 1 {
		t.Errorf("summary = %s", s)
	}
	if len(gone.Tags[catalog.GroupMoods]) != 1 || gone.Tags[catalog.GroupMoods][0] != "calm" {
		t.Errorf("tags = %v", gone.Tags)
	}
	if gone.Scales["energy"] != 5 {
		t.Errorf("energy = %d", gone.Scales["energy"])
	}
	if c.Cluster(gone.ClusterID) == nil {
		t.Error("cluster should be backfilled")
	}
}

func TestRepairDuplicateLinks(t *testing.T) {
	a := &catalog.Track{TrackID: uuid.New(), Fingerprint: catalog.Fingerprint{SHA1: "h"}}
	other := &catalog.Track{TrackID: uuid.New(), Fingerprint: catalog.Fingerprint{SHA1: "z"}}
	ghost := uuid.New()
	b := &catalog.Track{TrackID: uuid.New(), Fingerprint: catalog.Fingerprint{SHA1: "h"}, DuplicateOf: &ghost}
	wrong := other.TrackID
	d := &catalog.Track{TrackID: uuid.New(), Fingerprint: catalog.Fingerprint{SHA1: "q"}, DuplicateOf: &wrong}
	d2ID := d.TrackID
	e := &catalog.Track{TrackID: uuid.New(), Fingerprint: catalog.Fingerprint{SHA1: "q"}, DuplicateOf: &d2ID}

	c := &catalog.Catalog{Tracks: []*catalog.Track{a, other, b, d, e}}
	if n := RepairDuplicateLinks(c); n != 2 {
		t.Errorf("repaired = %d, expected 2", n)
	}
	if b.DuplicateOf == nil || *b.DuplicateOf != a.TrackID {
		t.Error("dangling link should be re-pointed to the canonical")
	}
	if d.DuplicateOf != nil {
		t.Error("link to different content with no canonical should be cleared")
	}
	if e.DuplicateOf == nil || *e.DuplicateOf != d.TrackID {
		t.Error("valid link should be kept")
	}
	if RepairDuplicateLinks(c) != 0 {
		t.Error("repair should be idempotent")
	}
}
