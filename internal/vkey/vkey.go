// Package vkey generates virtual keys: short, unique, human-readable track
// identifiers.
package vkey

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Anything that is not a letter, mark, digit, underscore or hyphen
	filenameUnsafe = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\-]+`)
	partUnsafe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fallbacks for empty input
const (
	FallbackStem = "track"
	FallbackPart = "unk"
)

// FromFilename derives a key from a file's base name without extension.
// On collision it appends _0, _1, ... until the key is free.
func FromFilename(filename string, inUse map[string]struct{}) string {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	base := filenameUnsafe.ReplaceAllString(strings.TrimSpace(stem), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = FallbackStem
	}

	if _, taken := inUse[base]; !taken {
		return base
	}
	for i := 0; ; i++ {
		key := base + "_" + strconv.Itoa(i)
		if _, taken := inUse[key]; !taken {
			return key
		}
	}
}

// Slug lowercases a component and collapses non-alphanumeric runs to single
// hyphens. Underscore is reserved as the component separator.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = partUnsafe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return FallbackPart
	}
	return s
}

// Prefix returns the component part of a key, including the trailing underscore
func Prefix(mood, context, instrument, style string) string {
	return Slug(mood) + "_" + Slug(context) + "_" + Slug(instrument) + "_" + Slug(style) + "_"
}

// FromParts builds mood_context_instrument_style_NNN using the smallest
// positive serial not already taken under that exact prefix.
func FromParts(mood, context, instrument, style string, inUse map[string]struct{}) string {
	prefix := Prefix(mood, context, instrument, style)

	used := make(map[int]bool)
	for k := range inUse {
		tail, ok := strings.CutPrefix(k, prefix)
		if !ok || !isDigits(tail) {
			continue
		}
		if n, err := strconv.Atoi(tail); err == nil {
			used[n] = true
		}
	}

	sn := 1
	for used[sn] {
		sn++
	}
	return fmt.Sprintf("%s%03d", prefix, sn)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
