package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/franz/audio-catalog/internal/util"
)

// AddPrimaryRole appends a role. Returns false if it was already listed.
func (c *Catalog) AddPrimaryRole(role string) (bool, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return false, fmt.Errorf("%w: role required", util.ErrInvalidID)
	}
	if slices.Contains(c.Vocab.PrimaryRoles, role) {
		return false, nil
	}
	c.Vocab.PrimaryRoles = append(c.Vocab.PrimaryRoles, role)
	return true, nil
}

// AddTagValue appends a value to a group, creating the group if needed
func (c *Catalog) AddTagValue(group, value string) (bool, error) {
	group = strings.TrimSpace(group)
	value = strings.TrimSpace(value)
	if group == "" || value == "" {
		return false, fmt.Errorf("%w: group and value required", util.ErrInvalidID)
	}
	if IsProtectedGroup(group) && IsUnknownToken(value) {
		return false, fmt.Errorf("%w: %q means no selection in %s", util.ErrInvalidID, value, group)
	}
	if c.Vocab.TagVocab == nil {
		c.Vocab.TagVocab = map[string][]string{}
	}
	if slices.Contains(c.Vocab.TagVocab[group], value) {
		return false, nil
	}
	c.Vocab.TagVocab[group] = append(c.Vocab.TagVocab[group], value)
	c.ensureGroupOnTracks(group)
	return true, nil
}

// AddTagGroup creates an empty tag group. Identity group names are reserved.
func (c *Catalog) AddTagGroup(group string) (bool, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return false, fmt.Errorf("%w: group required", util.ErrInvalidID)
	}
	if IsProtectedGroup(group) {
		return false, fmt.Errorf("tag group %q is reserved for virtual keys: %w", group, util.ErrConflict)
	}
	if c.Vocab.TagVocab == nil {
		c.Vocab.TagVocab = map[string][]string{}
	}
	if _, ok := c.Vocab.TagVocab[group]; ok {
		return false, nil
	}
	c.Vocab.TagVocab[group] = []string{}
	c.ensureGroupOnTracks(group)
	return true, nil
}

// DeleteTagGroup removes a group from the vocabulary and every track.
// Returns the number of tag assignments removed.
func (c *Catalog) DeleteTagGroup(group string) (int, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return 0, fmt.Errorf("%w: group required", util.ErrInvalidID)
	}
	if IsProtectedGroup(group) {
		return 0, fmt.Errorf("tag group %q is required by virtual keys: %w", group, util.ErrConflict)
	}
	if _, ok := c.Vocab.TagVocab[group]; !ok {
		return 0, nil
	}

	delete(c.Vocab.TagVocab, group)
	removed := 0
	for _, t := range c.Tracks {
		if vals, ok := t.Tags[group]; ok {
			removed += len(vals)
			delete(t.Tags, group)
		}
	}
	return removed, nil
}

// DeleteTagValue removes a value, compared case-insensitively, from a group
// and from every track. Returns removals from the vocabulary and from tracks.
func (c *Catalog) DeleteTagValue(group, value string) (fromVocab, fromTracks int, err error) {
	group = strings.TrimSpace(group)
	value = strings.TrimSpace(value)
	if group == "" || value == "" {
		return 0, 0, fmt.Errorf("%w: group and value required", util.ErrInvalidID)
	}
	vals, ok := c.Vocab.TagVocab[group]
	if !ok {
		return 0, 0, fmt.Errorf("tag group %q: %w", group, util.ErrNotFound)
	}

	target := FoldKey(value)
	keep := func(v string) bool { return FoldKey(v) != target }

	kept := filter(vals, keep)
	fromVocab = len(vals) - len(kept)
	c.Vocab.TagVocab[group] = kept

	for _, t := range c.Tracks {
		cur := t.Tags[group]
		next := filter(cur, keep)
		fromTracks += len(cur) - len(next)
		if t.Tags == nil {
			t.Tags = map[string][]string{}
		}
		t.Tags[group] = next
	}
	return fromVocab, fromTracks, nil
}

// ScaleUpdate carries optional new bounds for a scale
type ScaleUpdate struct {
	Min     *int
	Max     *int
	Default *int
}

// AddScale defines a new scale and re-clamps every track. Inverted bounds
// are swapped and the default is clamped; a nil default means min. Adding
// an existing scale leaves its definition alone.
func (c *Catalog) AddScale(name string, lo, hi int, def *int) error {
	name = strings.TrimSpace(name)
	if err := ValidateScaleName(name); err != nil {
		return fmt.Errorf("%w: scale name: %v", util.ErrInvalidID, err)
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	dv := lo
	if def != nil {
		dv = *def
	}

	if c.Vocab.ScaleDefs == nil {
		c.Vocab.ScaleDefs = map[string]ScaleDef{}
	}
	if _, ok := c.Vocab.ScaleDefs[name]; !ok {
		c.Vocab.ScaleDefs[name] = ScaleDef{Min: lo, Max: hi, Default: max(lo, min(hi, dv))}
		if !slices.Contains(c.Vocab.ScaleNames, name) {
			c.Vocab.ScaleNames = append(c.Vocab.ScaleNames, name)
		}
	}

	c.clampScales()
	return nil
}

// UpdateScale changes the bounds of an existing scale and re-clamps every
// track.
func (c *Catalog) UpdateScale(name string, upd ScaleUpdate) error {
	name = strings.TrimSpace(name)
	cur, ok := c.Vocab.ScaleDefs[name]
	if !ok {
		return fmt.Errorf("scale %q: %w", name, util.ErrNotFound)
	}

	lo, hi, dv := cur.Min, cur.Max, cur.Default
	if upd.Min != nil {
		lo = *upd.Min
	}
	if upd.Max != nil {
		hi = *upd.Max
	}
	if upd.Default != nil {
		dv = *upd.Default
	}
	if hi < lo {
		lo, hi = hi, lo
	}

	c.Vocab.ScaleDefs[name] = ScaleDef{Min: lo, Max: hi, Default: max(lo, min(hi, dv))}
	c.clampScales()
	return nil
}

// DeleteScale removes a scale definition and its assignments. Returns the
// number of tracks that carried a value.
func (c *Catalog) DeleteScale(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: scale name required", util.ErrInvalidID)
	}
	if _, ok := c.Vocab.ScaleDefs[name]; !ok {
		return 0, nil
	}

	delete(c.Vocab.ScaleDefs, name)
	c.Vocab.ScaleNames = filter(c.Vocab.ScaleNames, func(n string) bool { return n != name })

	removed := 0
	for _, t := range c.Tracks {
		if _, ok := t.Scales[name]; ok {
			delete(t.Scales, name)
			removed++
		}
	}
	return removed, nil
}

// SetAlias maps a raw token (stored lower-cased) to its canonical value
func (c *Catalog) SetAlias(src, dst string) error {
	src = strings.TrimSpace(src)
	dst = strings.TrimSpace(dst)
	if src == "" || dst == "" {
		return fmt.Errorf("%w: alias source and target required", util.ErrInvalidID)
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
	c.Aliases[strings.ToLower(src)] = dst
	return nil
}

func (c *Catalog) ensureGroupOnTracks(group string) {
	for _, t := range c.Tracks {
		if t.Tags == nil {
			t.Tags = map[string][]string{}
		}
		if t.Tags[group] == nil {
			t.Tags[group] = []string{}
		}
	}
}

func (c *Catalog) clampScales() {
	for _, t := range c.Tracks {
		EnsureTrackScales(t, c.Vocab.ScaleDefs)
	}
}

func filter(vals []string, keep func(string) bool) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
