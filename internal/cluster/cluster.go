// Package cluster merges and splits clusters of track variants
package cluster

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/util"
	"github.com/franz/audio-catalog/internal/vkey"
)

// Info describes one cluster for listings
type Info struct {
	ClusterID      uuid.UUID  `json:"cluster_id"`
	Name           string     `json:"name"`
	TrackCount     int        `json:"track_count"`
	Representative *uuid.UUID `json:"representative_track_id"`
	Mood           string     `json:"mood"`
	Context        string     `json:"context"`
	Instrument     string     `json:"instrument"`
	Style          string     `json:"style"`
}

// List returns every cluster with its size and the identity of its first
// member, sorted by name case-insensitively
func List(c *catalog.Catalog) []Info {
	byCluster := make(map[uuid.UUID][]*catalog.Track)
	for _, t := range c.Tracks {
		if t.ClusterID == uuid.Nil {
			continue
		}
		byCluster[t.ClusterID] = append(byCluster[t.ClusterID], t)
	}

	out := make([]Info, 0, len(c.Clusters))
	for _, cl := range c.Clusters {
		members := byCluster[cl.ClusterID]
		info := Info{
			ClusterID:  cl.ClusterID,
			Name:       cl.Name,
			TrackCount: len(members),
		}
		if len(members) > 0 {
			rep := members[0]
			repID := rep.TrackID
			info.Representative = &repID
			id := rep.Identity()
			info.Mood, info.Context, info.Instrument, info.Style = id.Mood, id.Context, id.Instrument, id.Style
		}
		out = append(out, info)
	}

	slices.SortStableFunc(out, func(a, b Info) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// Merge moves every track of source into target and deletes source. Moved
// tracks take the shared metadata of the target's first member, and every
// track in the target gets a key built from the unified identity. Returns
// the number of moved tracks.
func Merge(c *catalog.Catalog, target, source uuid.UUID) (int, error) {
	if target == source {
		return 0, fmt.Errorf("cannot merge a cluster into itself: %w", util.ErrConflict)
	}

	if _, err := c.FindCluster(target); err != nil {
		return 0, err
	}
	if _, err := c.FindCluster(source); err != nil {
		return 0, err
	}

	targetTracks := c.ClusterTracks(target)
	sourceTracks := c.ClusterTracks(source)
	if len(targetTracks) == 0 {
		return 0, fmt.Errorf("target cluster %s has no tracks: %w", target, util.ErrConflict)
	}
	if len(sourceTracks) == 0 {
		c.RemoveCluster(source)
		util.DebugLog("Merge: source cluster %s was empty, removed", source)
		return 0, nil
	}

	template := targetTracks[0]
	id := template.Identity()
	identityLists := map[string][]string{
		catalog.GroupMoods:       primaryFirst(id.Mood, template.Tags[catalog.GroupMoods]),
		catalog.GroupContexts:    primaryFirst(id.Context, template.Tags[catalog.GroupContexts]),
		catalog.GroupInstruments: primaryFirst(id.Instrument, template.Tags[catalog.GroupInstruments]),
		catalog.GroupStyles:      primaryFirst(id.Style, template.Tags[catalog.GroupStyles]),
	}

	for _, t := range sourceTracks {
		t.ClusterID = target

		t.BPM = nil
		if template.BPM != nil {
			bpm := *template.BPM
			t.BPM = &bpm
		}
		t.Scales = maps.Clone(template.Scales)
		if t.Scales == nil {
			t.Scales = catalog.ScaleValues{}
		}
		t.Tags = cloneTags(template.Tags)
		t.Licensing = template.Licensing

		for group, vals := range identityLists {
			t.Tags[group] = slices.Clone(vals)
		}
	}

	rekey(c, target, id)
	c.RemoveCluster(source)

	util.InfoLog("Merged %d tracks from cluster %s into %s", len(sourceTracks), source, target)
	return len(sourceTracks), nil
}

// rekey regenerates the key of every member of cluster from one identity,
// in (path, id) order, reserving the keys of tracks outside the cluster
func rekey(c *catalog.Catalog, cluster uuid.UUID, id catalog.Identity) {
	reserved := c.VirtualKeys(func(t *catalog.Track) bool { return t.ClusterID == cluster })

	members := c.ClusterTracks(cluster)
	slices.SortFunc(members, func(a, b *catalog.Track) int {
		if n := cmp.Compare(a.OriginalPath, b.OriginalPath); n != 0 {
			return n
		}
		return cmp.Compare(a.TrackID.String(), b.TrackID.String())
	})

	for _, t := range members {
		key := vkey.FromParts(id.Mood, id.Context, id.Instrument, id.Style, reserved)
		util.DebugLog("Merge: %s -> %s", t.VirtualKey, key)
		t.VirtualKey = key
		reserved[key] = struct{}{}
	}
}

// primaryFirst puts primary at the front of values, dropping blanks and
// exact repeats while keeping the remaining order
func primaryFirst(primary string, values []string) []string {
	out := make([]string, 0, len(values)+1)
	seen := make(map[string]bool, len(values)+1)
	if primary != "" {
		out = append(out, primary)
		seen[primary] = true
	}
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func cloneTags(tags map[string][]string) map[string][]string {
	out := make(map[string][]string, len(tags))
	for group, vals := range tags {
		out[group] = slices.Clone(vals)
	}
	return out
}

// SplitResult reports the outcome of a split
type SplitResult struct {
	ClusterID uuid.UUID `json:"new_cluster_id"`
	Moved     int       `json:"moved"`
}

// Split moves the selected tracks of source into a new cluster. The
// selection must be a non-empty strict subset of the source members. Keys
// and metadata of the moved tracks are left as they are.
func Split(c *catalog.Catalog, source uuid.UUID, trackIDs []uuid.UUID, name string) (*SplitResult, error) {
	src, err := c.FindCluster(source)
	if err != nil {
		return nil, err
	}

	members := c.ClusterTracks(source)
	if len(members) == 0 {
		return nil, fmt.Errorf("source cluster %s has no tracks: %w", source, util.ErrConflict)
	}

	chosen := make(map[uuid.UUID]bool, len(trackIDs))
	for _, id := range trackIDs {
		chosen[id] = true
	}
	if len(chosen) == 0 {
		return nil, fmt.Errorf("no tracks selected: %w", util.ErrConflict)
	}

	inSource := make(map[uuid.UUID]bool, len(members))
	for _, t := range members {
		inSource[t.TrackID] = true
	}
	for id := range chosen {
		if !inSource[id] {
			return nil, fmt.Errorf("track %s is not in cluster %s: %w", id, source, util.ErrConflict)
		}
	}
	if len(chosen) >= len(members) {
		return nil, fmt.Errorf("selection must leave at least one track in the source: %w", util.ErrConflict)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		base := strings.TrimSpace(src.Name)
		if base == "" {
			base = "cluster"
		}
		name = base + " (split)"
	}

	cl := catalog.NewCluster(name)
	c.Clusters = append(c.Clusters, cl)

	moved := 0
	for _, t := range members {
		if chosen[t.TrackID] {
			t.ClusterID = cl.ClusterID
			moved++
		}
	}

	util.InfoLog("Split %d tracks from cluster %s into %q", moved, source, name)
	return &SplitResult{ClusterID: cl.ClusterID, Moved: moved}, nil
}
