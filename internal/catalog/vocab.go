package catalog

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
)

// Tag groups. The four identity groups feed virtual key construction and
// can never be deleted.
const (
	GroupMoods       = "moods"
	GroupContexts    = "usable_in_contexts"
	GroupInstruments = "instruments"
	GroupStyles      = "styles"
	GroupSettings    = "for_game_settings"
)

// IdentityGroups lists the virtual key components in key order
var IdentityGroups = [4]string{GroupMoods, GroupContexts, GroupInstruments, GroupStyles}

// DefaultPrimaryRoles is the runtime role list when none is stored
var DefaultPrimaryRoles = []string{
	"menu",
	"exploration",
	"town",
	"combat",
	"boss",
	"cutscene",
	"ending",
	"ambient",
}

// IsProtectedGroup reports whether a tag group is required by virtual keys
func IsProtectedGroup(group string) bool {
	return slices.Contains(IdentityGroups[:], group)
}

// ScaleDef bounds a numeric scale
type ScaleDef struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// UnmarshalJSON fills missing bounds with 0..5, default 0
func (d *ScaleDef) UnmarshalJSON(data []byte) error {
	type plain ScaleDef
	p := plain{Min: 0, Max: 5, Default: 0}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = ScaleDef(p)
	return nil
}

// Bounds returns min and max in order
func (d ScaleDef) Bounds() (int, int) {
	if d.Max < d.Min {
		return d.Max, d.Min
	}
	return d.Min, d.Max
}

// Clamp forces v into the scale's range
func (d ScaleDef) Clamp(v int) int {
	lo, hi := d.Bounds()
	return max(lo, min(hi, v))
}

// Vocab is the controlled vocabulary: roles, tag groups and scales
type Vocab struct {
	PrimaryRoles []string            `json:"primary_roles"`
	TagVocab     map[string][]string `json:"tag_vocab"`
	ScaleDefs    map[string]ScaleDef `json:"scale_defs"`

	// ScaleNames is the schema 1 form of ScaleDefs, kept as an ordering hint
	ScaleNames []string `json:"scale_names"`
}

// DefaultVocab returns the vocabulary a new catalog starts with
func DefaultVocab() Vocab {
	scales := []string{"energy", "details", "tension", "diversity", "users_liking"}
	defs := make(map[string]ScaleDef, len(scales))
	for _, name := range scales {
		defs[name] = ScaleDef{Min: 0, Max: 5, Default: 0}
	}

	return Vocab{
		PrimaryRoles: slices.Clone(DefaultPrimaryRoles),
		TagVocab: map[string][]string{
			GroupMoods: {
				"calm", "cozy", "playful", "lighthearted", "hopeful",
				"romantic", "mysterious", "suspenseful", "tense", "eerie",
				"ominous", "melancholic", "heroic", "triumphant", "epic",
			},
			GroupStyles: {
				"cinematic", "orchestral", "ambient", "minimalist", "electronic",
				"synthwave", "chiptune", "lofi", "rock", "jazz",
				"folk_acoustic", "world", "industrial", "horror",
			},
			GroupContexts: {
				"menu", "loading", "exploration", "hub", "town",
				"puzzle", "stealth", "combat", "boss", "cutscene",
				"game_over", "ending", "credits",
			},
			GroupInstruments: {
				"orchestral", "piano", "strings", "guitar", "bass",
				"percussion", "synth", "choir", "ethnic",
			},
			GroupSettings: {
				"fantasy", "sci-fi", "modern", "historical",
				"post-apocalyptic", "cyberpunk", "steampunk",
			},
		},
		ScaleDefs:  defs,
		ScaleNames: scales,
	}
}

// IsEmpty reports whether the vocabulary carries no groups and no scales.
// Primary roles alone do not count since they may be omitted on disk.
func (v Vocab) IsEmpty() bool {
	return len(v.TagVocab) == 0 && len(v.ScaleDefs) == 0 && len(v.ScaleNames) == 0
}

// OrderedScales returns scale names in display order: the ScaleNames hint
// first, then any remaining definitions sorted by name.
func (v Vocab) OrderedScales() []string {
	out := make([]string, 0, len(v.ScaleDefs))
	seen := make(map[string]bool, len(v.ScaleDefs))
	for _, name := range v.ScaleNames {
		if _, ok := v.ScaleDefs[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range v.ScaleDefs {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Groups returns tag group names sorted, identity groups first
func (v Vocab) Groups() []string {
	out := make([]string, 0, len(v.TagVocab))
	for _, g := range IdentityGroups {
		if _, ok := v.TagVocab[g]; ok {
			out = append(out, g)
		}
	}
	var rest []string
	for g := range v.TagVocab {
		if !IsProtectedGroup(g) {
			rest = append(rest, g)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// BackfillScales derives definitions from legacy names and the names hint
// from definitions.
func (v *Vocab) BackfillScales() bool {
	changed := false
	if v.ScaleDefs == nil {
		v.ScaleDefs = map[string]ScaleDef{}
	}
	if len(v.ScaleDefs) == 0 {
		for _, name := range v.ScaleNames {
			if name == "" {
				continue
			}
			if _, ok := v.ScaleDefs[name]; !ok {
				v.ScaleDefs[name] = ScaleDef{Min: 0, Max: 5, Default: 0}
				changed = true
			}
		}
	}
	if len(v.ScaleNames) == 0 && len(v.ScaleDefs) > 0 {
		v.ScaleNames = v.OrderedScales()
	}
	return changed
}

// IsUnknownToken reports whether a value spells "unknown" in an identity
// group. Unknown is represented by selecting nothing.
func IsUnknownToken(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "unk", "unknown", "none", "-":
		return true
	}
	return false
}

// StripUnknownOptions removes unknown tokens and blanks from the identity
// groups, keeping the first spelling of case-insensitive repeats. Reports
// whether anything was removed.
func (v *Vocab) StripUnknownOptions() bool {
	changed := false
	for _, group := range IdentityGroups {
		vals, ok := v.TagVocab[group]
		if !ok {
			continue
		}
		cleaned := make([]string, 0, len(vals))
		seen := make(map[string]bool, len(vals))
		for _, val := range vals {
			s := strings.TrimSpace(val)
			if s == "" || IsUnknownToken(s) || seen[strings.ToLower(s)] {
				continue
			}
			seen[strings.ToLower(s)] = true
			cleaned = append(cleaned, s)
		}
		if len(cleaned) != len(vals) {
			changed = true
		}
		v.TagVocab[group] = cleaned
	}
	return changed
}

// UnmarshalJSON decodes a vocabulary field by field. Corrupt fragments are
// dropped instead of failing the whole catalog.
func (v *Vocab) UnmarshalJSON(data []byte) error {
	*v = Vocab{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	if msg, ok := raw["primary_roles"]; ok {
		v.PrimaryRoles = decodeStrings(msg)
	}

	if msg, ok := raw["tag_vocab"]; ok {
		var groups map[string]json.RawMessage
		if err := json.Unmarshal(msg, &groups); err == nil {
			v.TagVocab = make(map[string][]string, len(groups))
			for name, g := range groups {
				var probe []json.RawMessage
				if err := json.Unmarshal(g, &probe); err != nil || name == "" {
					continue
				}
				v.TagVocab[name] = decodeStrings(g)
			}
		}
	}

	if msg, ok := raw["scale_defs"]; ok {
		var defs map[string]json.RawMessage
		if err := json.Unmarshal(msg, &defs); err == nil {
			v.ScaleDefs = make(map[string]ScaleDef, len(defs))
			for name, d := range defs {
				var def ScaleDef
				if err := json.Unmarshal(d, &def); err != nil {
					continue
				}
				v.ScaleDefs[name] = def
			}
		}
	}

	if msg, ok := raw["scale_names"]; ok {
		v.ScaleNames = decodeStrings(msg)
	}

	return nil
}

// MarshalJSON writes the compact on-disk form: default or empty role lists
// and a scale_names list that only repeats scale_defs are omitted. Loading
// restores both, so omission never changes meaning.
func (v Vocab) MarshalJSON() ([]byte, error) {
	out := struct {
		PrimaryRoles []string            `json:"primary_roles,omitempty"`
		TagVocab     map[string][]string `json:"tag_vocab"`
		ScaleDefs    map[string]ScaleDef `json:"scale_defs"`
		ScaleNames   []string            `json:"scale_names,omitempty"`
	}{
		TagVocab:  v.TagVocab,
		ScaleDefs: v.ScaleDefs,
	}
	if out.TagVocab == nil {
		out.TagVocab = map[string][]string{}
	}
	if out.ScaleDefs == nil {
		out.ScaleDefs = map[string]ScaleDef{}
	}

	if len(v.PrimaryRoles) > 0 && !slices.Equal(v.PrimaryRoles, DefaultPrimaryRoles) {
		out.PrimaryRoles = v.PrimaryRoles
	}

	if len(v.ScaleNames) > 0 && !slices.Equal(v.ScaleNames, sortedKeys(v.ScaleDefs)) {
		out.ScaleNames = v.ScaleNames
	}

	return json.Marshal(out)
}

func decodeStrings(msg json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
