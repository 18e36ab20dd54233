package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/catalog"
	"github.com/franz/audio-catalog/internal/cluster"
	"github.com/franz/audio-catalog/internal/history"
)

// Clusters lists every cluster sorted by name
func (s *Session) Clusters() ([]cluster.Info, error) {
	var out []cluster.Info
	err := s.View(func(c *catalog.Catalog) error {
		out = cluster.List(c)
		return nil
	})
	return out, err
}

// Merge moves every track of source into target and removes source.
// Returns the number of moved tracks.
func (s *Session) Merge(target, source uuid.UUID) (int, error) {
	var moved int
	var rows []*history.Change
	err := s.mutate(func(c *catalog.Catalog) error {
		members := c.ClusterTracks(source)
		n, err := cluster.Merge(c, target, source)
		if err != nil {
			return err
		}
		moved = n
		for _, t := range members {
			ch := trackChange(history.KindMerge, t)
			ch.Detail = fmt.Sprintf("merged from cluster %s", source)
			rows = append(rows, ch)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.events.LogMerge(target.String(), source.String(), moved)
	s.record(rows...)
	return moved, nil
}

// Split moves the selected tracks of source into a new cluster
func (s *Session) Split(source uuid.UUID, trackIDs []uuid.UUID, name string) (*cluster.SplitResult, error) {
	var res *cluster.SplitResult
	var rows []*history.Change
	var created string
	err := s.mutate(func(c *catalog.Catalog) error {
		r, err := cluster.Split(c, source, trackIDs, name)
		if err != nil {
			return err
		}
		res = r
		if cl := c.Cluster(r.ClusterID); cl != nil {
			created = cl.Name
		}
		for _, t := range c.ClusterTracks(r.ClusterID) {
			ch := trackChange(history.KindSplit, t)
			ch.Detail = fmt.Sprintf("split from cluster %s", source)
			rows = append(rows, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.LogSplit(source.String(), res.ClusterID.String(), created, res.Moved)
	s.record(rows...)
	return res, nil
}
