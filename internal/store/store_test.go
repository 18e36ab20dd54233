package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/util"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	if err := os.MkdirAll(raw, 0755); err != nil {
		t.Fatal(err)
	}
	s, err := New(&Config{Path: filepath.Join(dir, "data", "catalog.json"), RawRoot: raw})
	if err != nil {
		t.Fatal(err)
	}
	return s, raw
}

func writeRaw(t *testing.T, raw, rel, content string) {
	t.Helper()
	p := filepath.Join(raw, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestNew_RequiresPaths(t *testing.T) {
	if _, err := New(&Config{RawRoot: "/raw"}); err == nil {
		t.Error("expected error without catalog path")
	}
	if _, err := New(&Config{Path: "c.json"}); err == nil {
		t.Error("expected error without raw root")
	}
}

func TestOpen_CreatesAndPopulates(t *testing.T) {
	s, raw := newStore(t)
	writeRaw(t, raw, "Pack1/track_01.mp3", "dummy audio one")
	writeRaw(t, raw, "Pack2/nested/track_02.ogg", "dummy audio two")

	c, summary, err := s.Open(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary == nil || summary.New != 2 {
		t.Errorf("expected a new catalog with 2 tracks, got %+v", summary)
	}
	if len(c.Tracks) != 2 || len(c.Clusters) != 2 {
		t.Fatalf("tracks=%d clusters=%d", len(c.Tracks), len(c.Clusters))
	}
	if !s.Exists() {
		t.Fatal("catalog should be saved")
	}

	again, summary, err := s.Open(context.Background(), nil)
	if err != nil || summary != nil {
		t.Fatalf("reopen: summary=%+v err=%v", summary, err)
	}
	keys := map[string]bool{}
	for _, tr := range again.Tracks {
		keys[tr.VirtualKey] = true
		if tr.MissingFile {
			t.Errorf("%s marked missing", tr.VirtualKey)
		}
	}
	if !keys["track_01"] || !keys["track_02"] {
		t.Errorf("keys = %v", keys)
	}
	if again.RawMusicDirectory != s.RawRoot() {
		t.Errorf("raw dir = %s", again.RawMusicDirectory)
	}
}

func TestCreate_MissingRawRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(&Config{Path: filepath.Join(dir, "c.json"), RawRoot: filepath.Join(dir, "nope")})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Open(context.Background(), nil); err == nil {
		t.Fatal("expected error for a missing raw root")
	}
	if s.Exists() {
		t.Error("failed create must not write a catalog")
	}
}

func TestLoad_Missing(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Load(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, expected not-exist", err)
	}
}

func TestLoad_RawRootPortability(t *testing.T) {
	s, raw := newStore(t)
	writeRaw(t, raw, "a.wav", "a")
	if _, _, err := s.Create(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	// Simulate a catalog written on another machine
	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	c.RawMusicDirectory = "/some/other/machine"
	data, _ := Encode(c)
	if err := os.WriteFile(s.Path(), data, 0644); err != nil {
		t.Fatal(err)
	}

	c, err = s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.RawMusicDirectory != s.RawRoot() {
		t.Errorf("in memory raw dir = %s", c.RawMusicDirectory)
	}
	if got := readDoc(t, s.Path())["raw_music_directory"]; got != s.RawRoot() {
		t.Errorf("persisted raw dir = %v", got)
	}
}

func TestLoad_UpgradesLegacyFile(t *testing.T) {
	s, _ := newStore(t)
	legacy := `{
  "schema_version": 1,
  "raw_music_directory": "/old",
  "vocab": {},
  "tracks": [
    {
      "track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c01",
      "original_path": "Pack1/a.mp3",
      "fingerprint": {"sha1": "aaa", "file_size": 3, "modified_time": 1700000000.5},
      "virtual_key": "a",
      "scales": {"energy": 12}
    }
  ]
}`
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.SchemaVersion != catalog.SchemaVersion {
		t.Errorf("schema = %d", c.SchemaVersion)
	}
	if len(c.Vocab.TagVocab) == 0 || len(c.Vocab.ScaleDefs) == 0 {
		t.Error("empty vocab should be replaced by the defaults")
	}
	tr := c.Tracks[0]
	if c.Cluster(tr.ClusterID) == nil {
		t.Error("track should get a cluster")
	}
	if tr.Scales["energy"] != 5 || tr.RawFileName != "a.mp3" || tr.RawParentDirName != "Pack1" {
		t.Errorf("track not normalized: %+v", tr)
	}

	doc := readDoc(t, s.Path())
	if doc["schema_version"] != float64(catalog.SchemaVersion) {
		t.Errorf("upgrade not persisted: %v", doc["schema_version"])
	}
	if len(doc["clusters"].([]any)) != 1 {
		t.Error("clusters not persisted")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"tracks": [`},
		{"wrong shape", `{"tracks": {"a": 1}}`},
		{"duplicate ids", `{"tracks": [
			{"track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c01", "original_path": "a.ogg", "fingerprint": {"sha1": "a"}, "virtual_key": "k"},
			{"track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c01", "original_path": "b.ogg", "fingerprint": {"sha1": "b"}, "virtual_key": "j"}
		]}`},
		{"absolute path", `{"tracks": [
			{"track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c01", "original_path": "/etc/passwd", "fingerprint": {"sha1": "a"}, "virtual_key": "k"}
		]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(s.Path(), []byte(tt.doc), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := s.Load()
			if !errors.Is(err, util.ErrInvalidCatalog) {
				t.Errorf("err = %v, expected ErrInvalidCatalog", err)
			}
			if data, _ := os.ReadFile(s.Path()); string(data) != tt.doc {
				t.Error("invalid catalog must not be rewritten")
			}
		})
	}
}

func TestLoad_RepairsDuplicateKeys(t *testing.T) {
	s, _ := newStore(t)
	doc := `{"schema_version": 2, "tracks": [
		{"track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c01", "original_path": "a.ogg", "fingerprint": {"sha1": "a"}, "virtual_key": "k"},
		{"track_id": "8a3c5e1e-2f57-4c59-9b6a-1d0b6f7a9c02", "original_path": "b.ogg", "fingerprint": {"sha1": "b"}, "virtual_key": "k"}
	]}`
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Tracks[0].VirtualKey != "k" || c.Tracks[1].VirtualKey != "k_0" {
		t.Errorf("keys = %q, %q", c.Tracks[0].VirtualKey, c.Tracks[1].VirtualKey)
	}

	// The repair is written back
	saved, err := Decode([]byte(mustRead(t, s.Path())))
	if err != nil {
		t.Fatal(err)
	}
	if saved.Tracks[1].VirtualKey != "k_0" {
		t.Errorf("repaired key not saved: %q", saved.Tracks[1].VirtualKey)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSave(t *testing.T) {
	s, _ := newStore(t)
	c := catalog.New(s.RawRoot())
	before := c.UpdatedAt

	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}
	if !c.UpdatedAt.After(before.Time) && !c.UpdatedAt.Equal(before.Time) {
		t.Error("updated_at should be refreshed")
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	doc := readDoc(t, s.Path())
	if _, ok := doc["aliases"]; ok {
		t.Error("empty aliases should be pruned")
	}
	vocab := doc["vocab"].(map[string]any)
	if _, ok := vocab["primary_roles"]; ok {
		t.Error("default primary roles should be pruned")
	}

	// Pruned fields come back on load
	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Vocab.PrimaryRoles) != len(catalog.DefaultPrimaryRoles) || loaded.Aliases == nil {
		t.Error("pruned fields should load with defaults")
	}
}

func TestSave_KeepsNonASCII(t *testing.T) {
	s, _ := newStore(t)
	c := catalog.New(s.RawRoot())
	c.Aliases["düster"] = "dark & moody"
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(data), `"düster": "dark & moody"`) {
		t.Errorf("expected raw UTF-8 and unescaped &, got:\n%s", data)
	}
}

func TestSave_FailureKeepsDestination(t *testing.T) {
	s, _ := newStore(t)

	// A non-empty directory at the destination makes the rename fail
	if err := os.MkdirAll(filepath.Join(s.Path(), "keep"), 0755); err != nil {
		t.Fatal(err)
	}

	c := catalog.New(s.RawRoot())
	if err := s.Save(c); err == nil {
		t.Fatal("expected save to fail")
	}
	if _, err := os.Stat(filepath.Join(s.Path(), "keep")); err != nil {
		t.Error("destination should be untouched")
	}

	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(c.Tracks) != 0 || c.Vocab.IsEmpty() {
		t.Error("in-memory catalog should be retained")
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newStore(t)

	snap, err := s.Snapshot()
	if err != nil || !snap.IsZero() {
		t.Fatalf("missing file snapshot = %+v, %v", snap, err)
	}

	c := catalog.New(s.RawRoot())
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}
	first, err := s.Snapshot()
	if err != nil || first.IsZero() {
		t.Fatalf("snapshot = %+v, %v", first, err)
	}

	c.Aliases["x"] = "y"
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Snapshot()
	if second == first {
		t.Error("snapshot should change when the file changes")
	}
}

func TestRescanRoundTripIsStable(t *testing.T) {
	s, raw := newStore(t)
	writeRaw(t, raw, "A/one.ogg", "one")
	writeRaw(t, raw, "B/two.ogg", "two")
	writeRaw(t, raw, "B/copy.ogg", "two")

	c, _, err := s.Create(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(s.Path())

	summary, err := s.Engine(nil).Sync(context.Background(), c, reconcile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.IsZero() {
		t.Errorf("second pass = %s", summary)
	}

	loaded, err := Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	c.UpdatedAt = loaded.UpdatedAt
	second, _ := Encode(c)
	if string(first) != string(second) {
		t.Errorf("catalog changed after a no-op rescan:\n%s\n---\n%s", first, second)
	}
}
