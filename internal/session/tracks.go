package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/history"
	"github.com/franz/audio-catalog/internal/reconcile"
	"github.com/franz/audio-catalog/internal/report"
	"github.com/franz/audio-catalog/internal/util"
)

// Track returns a copy of one track record
func (s *Session) Track(id uuid.UUID) (*catalog.Track, error) {
	var out *catalog.Track
	err := s.View(func(c *catalog.Catalog) error {
		t, err := c.FindTrack(id)
		if err != nil {
			return err
		}
		out = copyTrack(t)
		return nil
	})
	return out, err
}

// ReplaceTrack stores a track record decoded from a JSON document
func (s *Session) ReplaceTrack(id uuid.UUID, doc []byte) (*catalog.Track, error) {
	var out *catalog.Track
	err := s.mutate(func(c *catalog.Catalog) error {
		t, err := c.ReplaceTrack(id, doc)
		if err != nil {
			return err
		}
		out = copyTrack(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.LogTrack(report.EventEdit, out, "", "record replaced")
	s.record(trackChange(history.KindEdit, out))
	return out, nil
}

// SetVirtualKey assigns an explicit virtual key
func (s *Session) SetVirtualKey(id uuid.UUID, key string) (*catalog.Track, error) {
	return s.editKey(id, "key set", func(c *catalog.Catalog) error {
		return c.SetVirtualKey(id, key)
	})
}

// RebuildVirtualKey derives a fresh key from the track's identity tags
func (s *Session) RebuildVirtualKey(id uuid.UUID) (*catalog.Track, error) {
	return s.editKey(id, "key rebuilt", func(c *catalog.Catalog) error {
		_, err := c.RebuildVirtualKey(id)
		return err
	})
}

func (s *Session) editKey(id uuid.UUID, reason string, fn func(c *catalog.Catalog) error) (*catalog.Track, error) {
	var out *catalog.Track
	var oldKey string
	err := s.mutate(func(c *catalog.Catalog) error {
		t, err := c.FindTrack(id)
		if err != nil {
			return err
		}
		oldKey = t.VirtualKey
		if err := fn(c); err != nil {
			return err
		}
		out = copyTrack(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.LogTrack(report.EventEdit, out, "", reason)
	ch := trackChange(history.KindEdit, out)
	ch.Detail = fmt.Sprintf("%s (was %s)", reason, oldKey)
	s.record(ch)
	return out, nil
}

// DeleteTrack removes a track. Returns the removed record and the number of
// duplicate links that pointed at it.
func (s *Session) DeleteTrack(id uuid.UUID) (*catalog.Track, int, error) {
	var removed *catalog.Track
	var cleared int
	err := s.mutate(func(c *catalog.Catalog) error {
		var err error
		removed, cleared, err = c.DeleteTrack(id)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	s.events.LogTrack(report.EventDelete, removed, "", fmt.Sprintf("%d duplicate links cleared", cleared))
	s.record(trackChange(history.KindDelete, removed))
	return removed, cleared, nil
}

// Locate relinks a track to a file chosen by the user. The path may be
// absolute or relative to the raw root; it must resolve inside the raw
// root, exist and not be linked to another track.
func (s *Session) Locate(ctx context.Context, id uuid.UUID, path string) (*catalog.Track, error) {
	root := s.store.RawRoot()

	rel := filepath.ToSlash(strings.TrimSpace(path))
	if filepath.IsAbs(path) {
		r, err := util.RelPOSIX(root, filepath.Clean(path))
		if err != nil {
			return nil, err
		}
		rel = r
	}
	abs, err := util.SafeJoin(root, rel)
	if err != nil {
		return nil, err
	}
	rel, err = util.RelPOSIX(root, abs)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", rel, util.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("%s is not a regular file: %w", rel, util.ErrConflict)
	}

	var out *catalog.Track
	var oldPath string
	err = s.mutate(func(c *catalog.Catalog) error {
		t, err := c.FindTrack(id)
		if err != nil {
			return err
		}
		if other := c.TrackByPath(rel); other != nil && other.TrackID != id {
			return fmt.Errorf("%s is already linked to track %s: %w", rel, other.TrackID, util.ErrConflict)
		}

		// Fingerprint before touching the record so a read error changes nothing
		size, mtime, err := util.FileStat(abs)
		if err != nil {
			return err
		}
		sum, err := util.ContentHash(abs)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		oldPath = t.OriginalPath
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(abs)), ".")
		t.Relink(rel, format, catalog.Fingerprint{SHA1: sum, FileSize: size, ModifiedTime: mtime})
		if s.probe != nil {
			if secs, ok := s.probe(abs); ok {
				t.LengthSec = &secs
			}
		}
		reconcile.RepairDuplicateLinks(c)

		out = copyTrack(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.InfoLog("Located %s: %s -> %s", out.VirtualKey, oldPath, rel)
	s.events.LogTrack(report.EventLocate, out, oldPath, "")
	ch := trackChange(history.KindLocate, out)
	ch.OldPath = oldPath
	s.record(ch)
	return out, nil
}

// ResolvePath returns the absolute location of a track's file
func (s *Session) ResolvePath(id uuid.UUID) (string, error) {
	t, err := s.Track(id)
	if err != nil {
		return "", err
	}
	return util.SafeJoin(s.store.RawRoot(), t.OriginalPath)
}

// copyTrack returns a deep copy so callers never share state with the
// live catalog
func copyTrack(t *catalog.Track) *catalog.Track {
	cp := *t
	if t.Tags != nil {
		cp.Tags = make(map[string][]string, len(t.Tags))
		for g, vals := range t.Tags {
			cp.Tags[g] = slices.Clone(vals)
		}
	}
	cp.Scales = maps.Clone(t.Scales)
	if t.LengthSec != nil {
		v := *t.LengthSec
		cp.LengthSec = &v
	}
	if t.BPM != nil {
		v := *t.BPM
		cp.BPM = &v
	}
	if t.DuplicateOf != nil {
		v := *t.DuplicateOf
		cp.DuplicateOf = &v
	}
	return &cp
}
