package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/util"
	"github.com/franz/audio-catalog/internal/vkey"
)

// ParseID parses a track or cluster identifier
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", util.ErrInvalidID, s)
	}
	return id, nil
}

// FindTrack returns the track with the given id or ErrNotFound
func (c *Catalog) FindTrack(id uuid.UUID) (*Track, error) {
	if t := c.Track(id); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("track %s: %w", id, util.ErrNotFound)
}

// FindCluster returns the cluster with the given id or ErrNotFound
func (c *Catalog) FindCluster(id uuid.UUID) (*Cluster, error) {
	if cl := c.Cluster(id); cl != nil {
		return cl, nil
	}
	return nil, fmt.Errorf("cluster %s: %w", id, util.ErrNotFound)
}

// Relink points a track at a new file location and fingerprint
func (t *Track) Relink(rel, format string, fp Fingerprint) {
	t.OriginalPath = rel
	t.FileFormat = format
	t.RawFileName, t.RawParentDirName = util.PathHints(rel)
	t.Fingerprint = fp
	t.MissingFile = false
}

// ReplaceTrack swaps a track record for one decoded from a JSON document.
// The id is immutable; the virtual key must be non-empty and unique. The
// stored record is normalized before it replaces the old one.
func (c *Catalog) ReplaceTrack(id uuid.UUID, doc []byte) (*Track, error) {
	idx := -1
	for i, t := range c.Tracks {
		if t.TrackID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("track %s: %w", id, util.ErrNotFound)
	}
	old := c.Tracks[idx]

	var next Track
	if err := json.Unmarshal(doc, &next); err != nil {
		return nil, fmt.Errorf("%w: track document: %v", util.ErrInvalidID, err)
	}
	next.TrackID = id

	next.VirtualKey = strings.TrimSpace(next.VirtualKey)
	if next.VirtualKey == "" {
		return nil, fmt.Errorf("virtual_key cannot be empty: %w", util.ErrConflict)
	}
	for i, other := range c.Tracks {
		if i != idx && other.VirtualKey == next.VirtualKey {
			return nil, fmt.Errorf("virtual_key %q already exists: %w", next.VirtualKey, util.ErrConflict)
		}
	}

	if next.OriginalPath == "" {
		next.OriginalPath = old.OriginalPath
	}
	if !IsRelativePath(next.OriginalPath) {
		return nil, fmt.Errorf("%w: %q", util.ErrOutsideRoot, next.OriginalPath)
	}
	if next.OriginalPath != old.OriginalPath {
		for i, other := range c.Tracks {
			if i != idx && other.OriginalPath == next.OriginalPath {
				return nil, fmt.Errorf("path %q is linked to track %s: %w", next.OriginalPath, other.TrackID, util.ErrConflict)
			}
		}
	}

	if next.ClusterID == uuid.Nil {
		next.ClusterID = old.ClusterID
	} else if c.Cluster(next.ClusterID) == nil {
		return nil, fmt.Errorf("cluster %s: %w", next.ClusterID, util.ErrNotFound)
	}

	if next.Fingerprint.SHA1 == "" {
		next.Fingerprint = old.Fingerprint
	}

	if next.DuplicateOf != nil {
		canon := c.Track(*next.DuplicateOf)
		switch {
		case *next.DuplicateOf == id:
			return nil, fmt.Errorf("track cannot duplicate itself: %w", util.ErrConflict)
		case canon == nil:
			return nil, fmt.Errorf("duplicate_of %s: %w", *next.DuplicateOf, util.ErrNotFound)
		case canon.Fingerprint.SHA1 != next.Fingerprint.SHA1:
			return nil, fmt.Errorf("duplicate_of %s has different content: %w", canon.TrackID, util.ErrConflict)
		}
	}

	c.NormalizeTrack(&next, NewAliasTable(c.Aliases))
	c.Tracks[idx] = &next
	return &next, nil
}

// SetVirtualKey assigns an explicit key
func (c *Catalog) SetVirtualKey(id uuid.UUID, key string) error {
	t, err := c.FindTrack(id)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("virtual_key cannot be empty: %w", util.ErrConflict)
	}
	for _, other := range c.Tracks {
		if other != t && other.VirtualKey == key {
			return fmt.Errorf("virtual_key %q already exists: %w", key, util.ErrConflict)
		}
	}
	t.VirtualKey = key
	return nil
}

// RebuildVirtualKey derives a new key from the track's identity tags,
// ignoring the track's own current key.
func (c *Catalog) RebuildVirtualKey(id uuid.UUID) (string, error) {
	t, err := c.FindTrack(id)
	if err != nil {
		return "", err
	}
	inUse := c.VirtualKeys(func(x *Track) bool { return x == t })
	p := t.Identity().Parts()
	t.VirtualKey = vkey.FromParts(p[0], p[1], p[2], p[3], inUse)
	return t.VirtualKey, nil
}

// DeleteTrack removes a track and clears duplicate_of on tracks that pointed
// at it. An emptied cluster is kept. Returns the removed track and the
// number of cleared links.
func (c *Catalog) DeleteTrack(id uuid.UUID) (*Track, int, error) {
	idx := -1
	for i, t := range c.Tracks {
		if t.TrackID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0, fmt.Errorf("track %s: %w", id, util.ErrNotFound)
	}

	removed := c.Tracks[idx]
	c.Tracks = append(c.Tracks[:idx], c.Tracks[idx+1:]...)

	cleared := 0
	for _, t := range c.Tracks {
		if t.DuplicateOf != nil && *t.DuplicateOf == id {
			t.DuplicateOf = nil
			cleared++
		}
	}
	return removed, cleared, nil
}

// TrackByPath returns the track stored at a relative path, or nil
func (c *Catalog) TrackByPath(rel string) *Track {
	for _, t := range c.Tracks {
		if t.OriginalPath == rel {
			return t
		}
	}
	return nil
}
