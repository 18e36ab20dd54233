package reconcile

import "github.com/franz/audio-catalog/internal/catalog"

// ChangeKind names what happened to a track during a pass
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeUpdated   ChangeKind = "updated"
	ChangeRelinked  ChangeKind = "relinked"
	ChangeDuplicate ChangeKind = "duplicate"
	ChangeMissing   ChangeKind = "missing"
)

// Change describes one track-level effect of a pass
type Change struct {
	Kind    ChangeKind
	Track   *catalog.Track
	OldPath string
	OldSHA1 string
	Reason  string
}

// Observer receives changes as they happen
type Observer func(Change)
