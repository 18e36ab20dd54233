package probe

import (
	"fmt"

	"github.com/dhowden/tag"

	"github.com/franz/audio-catalog/internal/util"
)

// EmbeddedTags is the subset of a file's own metadata shown next to its
// catalog record.
type EmbeddedTags struct {
	Format      string `json:"format"`
	FileType    string `json:"file_type"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	TrackTotal  int    `json:"track_total,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// ReadTags reads embedded tags from an audio file
func ReadTags(path string) (*EmbeddedTags, error) {
	f, err := util.RetryableOpen(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	track, total := m.Track()
	return &EmbeddedTags{
		Format:      string(m.Format()),
		FileType:    string(m.FileType()),
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Composer:    m.Composer(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Track:       track,
		TrackTotal:  total,
		Comment:     m.Comment(),
	}, nil
}
