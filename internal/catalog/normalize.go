package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/audio-catalog/internal/util"
)

// Identity holds the four virtual key components of a track
type Identity struct {
	Mood       string
	Context    string
	Instrument string
	Style      string
}

// Identity returns the first selected value of each identity group.
// An empty selection means "unknown".
func (t *Track) Identity() Identity {
	first := func(group string) string {
		if vals := t.Tags[group]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return Identity{
		Mood:       first(GroupMoods),
		Context:    first(GroupContexts),
		Instrument: first(GroupInstruments),
		Style:      first(GroupStyles),
	}
}

// Parts returns the components in key order
func (id Identity) Parts() [4]string {
	return [4]string{id.Mood, id.Context, id.Instrument, id.Style}
}

// FoldKey is the comparison form used for case-insensitive tag matching
func FoldKey(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// BackfillPathHints fills empty relink hints from the stored path
func BackfillPathHints(t *Track) {
	name, parent := util.PathHints(t.OriginalPath)
	if t.RawFileName == "" {
		t.RawFileName = name
	}
	if t.RawParentDirName == "" {
		t.RawParentDirName = parent
	}
}

// EnsureTrackScales gives the track a value for every defined scale, coerced
// into range. Assignments to undefined scales are dropped.
func EnsureTrackScales(t *Track, defs map[string]ScaleDef) {
	if t.Scales == nil {
		t.Scales = ScaleValues{}
	}
	for name := range t.Scales {
		if _, ok := defs[name]; !ok {
			delete(t.Scales, name)
		}
	}
	for name, def := range defs {
		v, ok := t.Scales[name]
		if !ok {
			v = def.Default
		}
		t.Scales[name] = def.Clamp(v)
	}
}

// EnsureTrackTags gives the track an entry for every vocabulary group
func EnsureTrackTags(t *Track, tagVocab map[string][]string) {
	if t.Tags == nil {
		t.Tags = map[string][]string{}
	}
	for group := range tagVocab {
		if t.Tags[group] == nil {
			t.Tags[group] = []string{}
		}
	}
}

// AliasTable resolves raw tag tokens to canonical values case-insensitively
type AliasTable struct {
	exact  map[string]string
	folded map[string]string
}

// NewAliasTable indexes an alias map. Keys are matched exactly lower-cased
// first, then by folded form in sorted key order.
func NewAliasTable(aliases map[string]string) *AliasTable {
	at := &AliasTable{
		exact:  make(map[string]string, len(aliases)),
		folded: make(map[string]string, len(aliases)),
	}
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		at.exact[k] = aliases[k]
		fk := FoldKey(k)
		if _, ok := at.folded[fk]; !ok {
			at.folded[fk] = aliases[k]
		}
	}
	return at
}

// Resolve returns the canonical form of a tag value, or "" for blanks
func (at *AliasTable) Resolve(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if at != nil {
		if dst, ok := at.exact[strings.ToLower(v)]; ok {
			return strings.TrimSpace(dst)
		}
		if dst, ok := at.folded[FoldKey(v)]; ok {
			return strings.TrimSpace(dst)
		}
	}
	return v
}

// NormalizeTrackTags resolves aliases, drops blanks and removes
// case-insensitive duplicates in every vocabulary group, keeping the first
// spelling seen. Unknown tokens are dropped from identity groups.
func NormalizeTrackTags(t *Track, vocab Vocab, aliases *AliasTable) {
	for group, values := range t.Tags {
		if _, ok := vocab.TagVocab[group]; !ok {
			continue
		}
		t.Tags[group] = normalizeValues(values, aliases, IsProtectedGroup(group))
	}
}

func normalizeValues(values []string, aliases *AliasTable, identity bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		nv := aliases.Resolve(v)
		if nv == "" || (identity && IsUnknownToken(nv)) {
			continue
		}
		k := FoldKey(nv)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, nv)
	}
	return out
}

// NormalizeTrack runs every per-track backfill and normalization pass
func (c *Catalog) NormalizeTrack(t *Track, aliases *AliasTable) {
	BackfillPathHints(t)
	EnsureTrackTags(t, c.Vocab.TagVocab)
	EnsureTrackScales(t, c.Vocab.ScaleDefs)
	NormalizeTrackTags(t, c.Vocab, aliases)
}

// NormalizeAll normalizes every track in the catalog
func (c *Catalog) NormalizeAll() {
	aliases := NewAliasTable(c.Aliases)
	for _, t := range c.Tracks {
		c.NormalizeTrack(t, aliases)
	}
}

// NewTrackTags returns the tag map of a fresh track: every group empty, so
// the identity starts out unknown
func (c *Catalog) NewTrackTags() map[string][]string {
	tags := make(map[string][]string, len(c.Vocab.TagVocab))
	for group := range c.Vocab.TagVocab {
		tags[group] = []string{}
	}
	return tags
}

// NewTrackScales returns every scale at its clamped default
func (c *Catalog) NewTrackScales() ScaleValues {
	scales := make(ScaleValues, len(c.Vocab.ScaleDefs))
	for name, def := range c.Vocab.ScaleDefs {
		scales[name] = def.Clamp(def.Default)
	}
	return scales
}
