package catalog

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/franz/audio-catalog/internal/util"
)

var scaleNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks the structural rules a persisted catalog must satisfy
func (c *Catalog) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Tracks, validation.By(uniqueTracks)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidCatalog, err)
	}
	return nil
}

// Validate checks one track record
func (t *Track) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TrackID, validation.By(notNilID)),
		validation.Field(&t.OriginalPath, validation.Required, validation.By(relativePath)),
		validation.Field(&t.VirtualKey, validation.Required),
		validation.Field(&t.Fingerprint),
	)
}

// Validate checks a fingerprint
func (f Fingerprint) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.SHA1, validation.Required),
		validation.Field(&f.FileSize, validation.Min(int64(0))),
	)
}

// ValidateScaleName checks a new scale name
func ValidateScaleName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Match(scaleNameRe).Error("must be letters, digits or underscore"),
	)
}

// IsRelativePath reports whether a stored path stays inside its root lexically
func IsRelativePath(rel string) bool {
	return relativePath(rel) == nil
}

func uniqueTracks(value interface{}) error {
	tracks, _ := value.([]*Track)
	ids := make(map[uuid.UUID]bool, len(tracks))
	for i, t := range tracks {
		if t == nil {
			return fmt.Errorf("track %d is null", i)
		}
		if ids[t.TrackID] {
			return fmt.Errorf("duplicate track_id %s", t.TrackID)
		}
		ids[t.TrackID] = true
	}
	return nil
}

func notNilID(value interface{}) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("must be a non-nil UUID")
	}
	return nil
}

func relativePath(value interface{}) error {
	rel, _ := value.(string)
	if rel == "" {
		return nil
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) {
		return errors.New("must be relative")
	}
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.New("must stay inside the raw root")
	}
	return nil
}
