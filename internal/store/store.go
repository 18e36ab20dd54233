// Package store loads, upgrades and atomically saves catalog files
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/scan"
	"github.com/franz/audio-catalog/internal/util"
)

// LockTimeout bounds how long Save waits for another writer's lock
var LockTimeout = 10 * time.Second

// Store reads and writes one catalog file for one raw root
type Store struct {
	path     string
	rawRoot  string
	probe    scan.ProbeFunc
	progress bool
}

// Config holds store configuration
type Config struct {
	Path     string // catalog JSON file
	RawRoot  string // raw music directory
	Probe    scan.ProbeFunc
	Progress bool
}

// New creates a Store with absolute paths
func New(cfg *Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("catalog path is required")
	}
	if cfg.RawRoot == "" {
		return nil, errors.New("raw music directory is required")
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	root, err := util.ResolveRoot(cfg.RawRoot)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:     path,
		rawRoot:  root,
		probe:    cfg.Probe,
		progress: cfg.Progress,
	}, nil
}

// Path returns the catalog file path
func (s *Store) Path() string { return s.path }

// RawRoot returns the resolved raw music directory
func (s *Store) RawRoot() string { return s.rawRoot }

// Exists reports whether the catalog file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Engine returns a reconciliation engine for this store's raw root
func (s *Store) Engine(observer reconcile.Observer) *reconcile.Engine {
	return reconcile.New(&reconcile.Config{
		Root:     s.rawRoot,
		Probe:    s.probe,
		Progress: s.progress,
		Observer: observer,
	})
}

// Open loads the catalog, creating and populating it when the file does
// not exist yet. The summary of the bootstrap scan is nil when an existing
// file was loaded.
func (s *Store) Open(ctx context.Context, observer reconcile.Observer) (*catalog.Catalog, *reconcile.Summary, error) {
	c, err := s.Load()
	if err == nil {
		return c, nil, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}
	return s.Create(ctx, observer)
}

// Load reads, validates and upgrades the catalog file. The file is
// rewritten when the upgrade changed anything or the stored raw root
// differs from the configured one.
func (s *Store) Load() (*catalog.Catalog, error) {
	data, err := util.RetryWithBackoff(util.SyncedFolderRetryConfig(), func() ([]byte, error) {
		return os.ReadFile(s.path)
	}, "read catalog")
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	res := catalog.Upgrade(c)
	needsSave := res.Changed()
	if res.FromVersion < catalog.SchemaVersion {
		util.InfoLog("Upgraded catalog from schema %d to %d", res.FromVersion, catalog.SchemaVersion)
	}
	if res.ClustersCreated > 0 {
		util.InfoLog("Created %d clusters for unclustered tracks", res.ClustersCreated)
	}
	if res.KeysRepaired > 0 {
		util.WarnLog("Re-keyed %d tracks with a duplicate virtual_key", res.KeysRepaired)
	}

	if c.RawMusicDirectory != s.rawRoot {
		util.InfoLog("Raw music directory changed: %q -> %q", c.RawMusicDirectory, s.rawRoot)
		c.RawMusicDirectory = s.rawRoot
		needsSave = true
	}

	if needsSave {
		if err := s.Save(c); err != nil {
			return nil, err
		}
	}

	util.DebugLog("Loaded catalog %s: %d tracks, %d clusters", s.path, len(c.Tracks), len(c.Clusters))
	return c, nil
}

// Create builds a catalog with the default vocabulary, populates it from
// the raw root with filename-derived keys and saves it
func (s *Store) Create(ctx context.Context, observer reconcile.Observer) (*catalog.Catalog, *reconcile.Summary, error) {
	util.InfoLog("Creating catalog %s for %s", s.path, s.rawRoot)

	c := catalog.New(s.rawRoot)
	summary, err := s.Engine(observer).Sync(ctx, c, reconcile.Options{KeysFromFilename: true})
	if err != nil {
		return nil, nil, fmt.Errorf("initial scan failed: %w", err)
	}

	if err := s.Save(c); err != nil {
		return nil, nil, err
	}
	return c, summary, nil
}

// Save refreshes updated_at and replaces the catalog file atomically. On
// failure the destination is left as it was.
func (s *Store) Save(c *catalog.Catalog) error {
	c.UpdatedAt = catalog.Now()

	data, err := Encode(c)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()
	ok, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !ok {
		return fmt.Errorf("failed to lock %s: %w", s.path, errors.Join(err, ctx.Err()))
	}
	defer lock.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return err
	}

	util.DebugLog("Saved catalog %s (%d bytes)", s.path, len(data))
	return nil
}

// writeAtomic writes data to a temp file beside path, syncs it and renames
// it over path
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := util.RetryableRename(tmpName, path, util.SyncedFolderRetryConfig()); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}

	success = true
	return nil
}

// Decode parses and validates a persisted catalog without upgrading it
func Decode(data []byte) (*catalog.Catalog, error) {
	c := &catalog.Catalog{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode renders the on-disk form: two-space indented, non-ASCII kept as is
func Encode(c *catalog.Catalog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
