package session

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/franz/audio-catalog/internal/catalog"
)

// vocabEdit runs one vocabulary operation. fn reports how many entries it
// affected and whether anything changed; unchanged catalogs are not saved.
func (s *Session) vocabEdit(action, subject string, fn func(c *catalog.Catalog) (int, bool, error)) (int, error) {
	var affected int
	changed := false
	err := s.mutate(func(c *catalog.Catalog) error {
		n, ok, err := fn(c)
		if err != nil {
			return err
		}
		affected, changed = n, ok
		if !ok {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed {
		s.events.LogVocab(action, subject, affected)
	}
	return affected, nil
}

// Vocab returns a copy of the vocabulary and aliases
func (s *Session) Vocab() (catalog.Vocab, map[string]string, error) {
	var v catalog.Vocab
	var aliases map[string]string
	err := s.View(func(c *catalog.Catalog) error {
		v = copyVocab(c.Vocab)
		aliases = maps.Clone(c.Aliases)
		return nil
	})
	return v, aliases, err
}

// AddPrimaryRole adds a primary role. Reports whether it was new.
func (s *Session) AddPrimaryRole(role string) (bool, error) {
	n, err := s.vocabEdit("add_role", role, func(c *catalog.Catalog) (int, bool, error) {
		added, err := c.AddPrimaryRole(role)
		return boolCount(added), added, err
	})
	return n > 0, err
}

// AddTagValue adds a value to a tag group. Reports whether it was new.
func (s *Session) AddTagValue(group, value string) (bool, error) {
	n, err := s.vocabEdit("add_tag_value", group+"/"+value, func(c *catalog.Catalog) (int, bool, error) {
		added, err := c.AddTagValue(group, value)
		return boolCount(added), added, err
	})
	return n > 0, err
}

// AddTagGroup creates a tag group. Reports whether it was new.
func (s *Session) AddTagGroup(group string) (bool, error) {
	n, err := s.vocabEdit("add_tag_group", group, func(c *catalog.Catalog) (int, bool, error) {
		added, err := c.AddTagGroup(group)
		return boolCount(added), added, err
	})
	return n > 0, err
}

// DeleteTagGroup removes a tag group. Returns the number of removed
// assignments.
func (s *Session) DeleteTagGroup(group string) (int, error) {
	return s.vocabEdit("delete_tag_group", group, func(c *catalog.Catalog) (int, bool, error) {
		_, exists := c.Vocab.TagVocab[strings.TrimSpace(group)]
		n, err := c.DeleteTagGroup(group)
		return n, exists, err
	})
}

// DeleteTagValue removes a tag value from the vocabulary and every track.
// Returns the removals from the vocabulary and from tracks.
func (s *Session) DeleteTagValue(group, value string) (int, int, error) {
	var fromVocab int
	fromTracks, err := s.vocabEdit("delete_tag_value", group+"/"+value, func(c *catalog.Catalog) (int, bool, error) {
		v, t, err := c.DeleteTagValue(group, value)
		fromVocab = v
		return t, err == nil && v+t > 0, err
	})
	if err != nil {
		return 0, 0, err
	}
	return fromVocab, fromTracks, nil
}

// AddScale defines a scale
func (s *Session) AddScale(name string, lo, hi int, def *int) error {
	_, err := s.vocabEdit("add_scale", name, func(c *catalog.Catalog) (int, bool, error) {
		return 0, true, c.AddScale(name, lo, hi, def)
	})
	return err
}

// UpdateScale changes the bounds of a scale
func (s *Session) UpdateScale(name string, upd catalog.ScaleUpdate) error {
	_, err := s.vocabEdit("update_scale", name, func(c *catalog.Catalog) (int, bool, error) {
		return 0, true, c.UpdateScale(name, upd)
	})
	return err
}

// DeleteScale removes a scale. Returns the number of tracks that carried a
// value.
func (s *Session) DeleteScale(name string) (int, error) {
	return s.vocabEdit("delete_scale", name, func(c *catalog.Catalog) (int, bool, error) {
		_, exists := c.Vocab.ScaleDefs[strings.TrimSpace(name)]
		n, err := c.DeleteScale(name)
		return n, exists, err
	})
}

// SetAlias maps a raw tag token to its canonical value
func (s *Session) SetAlias(src, dst string) error {
	_, err := s.vocabEdit("set_alias", fmt.Sprintf("%s=%s", src, dst), func(c *catalog.Catalog) (int, bool, error) {
		return 0, true, c.SetAlias(src, dst)
	})
	return err
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

func copyVocab(v catalog.Vocab) catalog.Vocab {
	cp := v
	cp.PrimaryRoles = slices.Clone(v.PrimaryRoles)
	cp.ScaleNames = slices.Clone(v.ScaleNames)
	cp.TagVocab = make(map[string][]string, len(v.TagVocab))
	for g, vals := range v.TagVocab {
		cp.TagVocab[g] = slices.Clone(vals)
	}
	cp.ScaleDefs = maps.Clone(v.ScaleDefs)
	return cp
}
