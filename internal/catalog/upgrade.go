package catalog

import (
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// UpgradeResult describes what Upgrade changed
type UpgradeResult struct {
	FromVersion     int
	VocabReplaced   bool
	UnknownStripped bool
	ScalesBackfill  bool
	ClustersCreated int
	KeysRepaired    int
}

// Changed reports whether the catalog on disk is out of date
func (r UpgradeResult) Changed() bool {
	return r.FromVersion < SchemaVersion || r.VocabReplaced || r.UnknownStripped || r.ScalesBackfill || r.ClustersCreated > 0
}

// Upgrade maps a decoded catalog of any schema version onto the current
// structure. It is deterministic and idempotent.
func Upgrade(c *Catalog) UpgradeResult {
	res := UpgradeResult{FromVersion: c.SchemaVersion}

	if c.Vocab.IsEmpty() {
		roles := c.Vocab.PrimaryRoles
		c.Vocab = DefaultVocab()
		if len(roles) > 0 {
			c.Vocab.PrimaryRoles = roles
		}
		res.VocabReplaced = true
	}

	// Roles are omitted on disk when they equal the defaults
	if len(c.Vocab.PrimaryRoles) == 0 {
		c.Vocab.PrimaryRoles = slices.Clone(DefaultPrimaryRoles)
	}
	if c.Vocab.TagVocab == nil {
		c.Vocab.TagVocab = map[string][]string{}
	}
	res.ScalesBackfill = c.Vocab.BackfillScales()
	res.UnknownStripped = c.Vocab.StripUnknownOptions()

	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
	if c.Clusters == nil {
		c.Clusters = []*Cluster{}
	}
	if c.Tracks == nil {
		c.Tracks = []*Track{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = Now()
	}

	c.NormalizeAll()
	res.KeysRepaired = RepairDuplicateKeys(c)
	res.ClustersCreated = EnsureClusters(c)

	if c.SchemaVersion < SchemaVersion {
		c.SchemaVersion = SchemaVersion
	}

	return res
}

// EnsureClusters gives every track a cluster. Tracks without one get a new
// single-member cluster; a cluster id that names no record gets a shell
// cluster. Returns the number of clusters created.
func EnsureClusters(c *Catalog) int {
	known := make(map[uuid.UUID]bool, len(c.Clusters))
	for _, cl := range c.Clusters {
		known[cl.ClusterID] = true
	}

	created := 0
	for _, t := range c.Tracks {
		if t.ClusterID != uuid.Nil && known[t.ClusterID] {
			continue
		}

		name := t.VirtualKey
		if name == "" {
			name = "cluster"
		}

		cl := NewCluster(name)
		if t.ClusterID != uuid.Nil {
			cl.ClusterID = t.ClusterID
		} else {
			t.ClusterID = cl.ClusterID
		}
		c.Clusters = append(c.Clusters, cl)
		known[cl.ClusterID] = true
		created++
	}
	return created
}

// RepairDuplicateKeys gives every track after the first one holding a
// virtual key a free key of the form key_0, key_1, ... Returns the number
// of tracks re-keyed.
func RepairDuplicateKeys(c *Catalog) int {
	inUse := make(map[string]struct{}, len(c.Tracks))
	for _, t := range c.Tracks {
		inUse[t.VirtualKey] = struct{}{}
	}

	seen := make(map[string]bool, len(c.Tracks))
	repaired := 0
	for _, t := range c.Tracks {
		if !seen[t.VirtualKey] {
			seen[t.VirtualKey] = true
			continue
		}
		for i := 0; ; i++ {
			key := t.VirtualKey + "_" + strconv.Itoa(i)
			if _, taken := inUse[key]; !taken {
				t.VirtualKey = key
				break
			}
		}
		inUse[t.VirtualKey] = struct{}{}
		seen[t.VirtualKey] = true
		repaired++
	}
	return repaired
}

// DuplicateKeys counts tracks whose virtual key is already held by an
// earlier track
func DuplicateKeys(c *Catalog) int {
	seen := make(map[string]bool, len(c.Tracks))
	n := 0
	for _, t := range c.Tracks {
		if seen[t.VirtualKey] {
			n++
		}
		seen[t.VirtualKey] = true
	}
	return n
}
