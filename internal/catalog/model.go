package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current on-disk schema. Version 2 introduced clusters.
const SchemaVersion = 2

// Catalog is the aggregate root persisted as one JSON document
type Catalog struct {
	SchemaVersion     int               `json:"schema_version"`
	CreatedAt         Timestamp         `json:"created_at"`
	UpdatedAt         Timestamp         `json:"updated_at"`
	RawMusicDirectory string            `json:"raw_music_directory"`
	Vocab             Vocab             `json:"vocab"`
	Aliases           map[string]string `json:"aliases,omitempty"`
	Clusters          []*Cluster        `json:"clusters"`
	Tracks            []*Track          `json:"tracks"`
}

// Cluster groups tracks that are variants of the same piece
type Cluster struct {
	ClusterID uuid.UUID `json:"cluster_id"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at"`
}

// Fingerprint detects whether a file's bytes changed
type Fingerprint struct {
	SHA1         string  `json:"sha1"`
	FileSize     int64   `json:"file_size"`
	ModifiedTime float64 `json:"modified_time"` // epoch seconds
}

// LoopInfo holds loop points in seconds
type LoopInfo struct {
	CanLoop      bool     `json:"can_loop"`
	LoopStartSec *float64 `json:"loop_start_sec"`
	LoopEndSec   *float64 `json:"loop_end_sec"`
	IntroSec     *float64 `json:"intro_sec"`
	OutroSec     *float64 `json:"outro_sec"`
}

// Licensing holds where a track came from and how it may be used
type Licensing struct {
	SourcePack          string `json:"source_pack"`
	LicenseType         string `json:"license_type"`
	ProofURLOrFile      string `json:"proof_url_or_file"`
	AttributionRequired bool   `json:"attribution_required"`
	AttributionText     string `json:"attribution_text"`
}

// Track is one catalog entry for a current or former audio file
type Track struct {
	TrackID   uuid.UUID `json:"track_id"`
	ClusterID uuid.UUID `json:"cluster_id"`

	OriginalPath string `json:"original_path"` // POSIX, relative to the raw root
	FileFormat   string `json:"file_format"`

	// Last known location, used only as a relink hint
	RawFileName      string `json:"raw_file_name"`
	RawParentDirName string `json:"raw_parent_dir_name"`

	Fingerprint Fingerprint `json:"fingerprint"`

	VirtualKey  string              `json:"virtual_key"`
	PrimaryRole string              `json:"primary_role"`
	Tags        map[string][]string `json:"tags"`
	Scales      ScaleValues         `json:"scales"`

	LoopInfo  LoopInfo  `json:"loop_info"`
	LengthSec *float64  `json:"length_sec"`
	BPM       *int      `json:"bpm"`
	Notes     string    `json:"notes"`
	Licensing Licensing `json:"licensing"`

	MissingFile bool       `json:"missing_file"`
	DuplicateOf *uuid.UUID `json:"duplicate_of"`
}

// UnmarshalJSON accepts a null or absent cluster_id from schema 1 files
func (t *Track) UnmarshalJSON(data []byte) error {
	type plain Track
	aux := struct {
		*plain
		ClusterID *uuid.UUID `json:"cluster_id"`
	}{plain: (*plain)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ClusterID != nil {
		t.ClusterID = *aux.ClusterID
	}
	return nil
}

// ScaleValues maps scale name to value. Decoding keeps anything that can be
// read as an integer and drops the rest so defaults apply later.
type ScaleValues map[string]int

// UnmarshalJSON decodes scale values leniently
func (s *ScaleValues) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A corrupt scales object degrades to "all defaults"
		*s = ScaleValues{}
		return nil
	}

	out := make(ScaleValues, len(raw))
	for name, msg := range raw {
		if v, ok := coerceInt(msg); ok {
			out[name] = v
		}
	}
	*s = out
	return nil
}

// coerceInt reads ints, integral-looking strings and floats (truncated)
func coerceInt(msg json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(msg, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	}

	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}

	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

// Timestamp is a UTC instant stored as ISO-8601 with a Z suffix.
// Unreadable values decode to the zero time.
type Timestamp struct {
	time.Time
}

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current time as a Timestamp
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.UTC().Format(timestampLayout))
}

// UnmarshalJSON implements json.Unmarshaler
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		ts.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	ts.Time = time.Time{}
	return nil
}

// New returns an empty catalog with the default vocabulary
func New(rawRoot string) *Catalog {
	now := Now()
	return &Catalog{
		SchemaVersion:     SchemaVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
		RawMusicDirectory: rawRoot,
		Vocab:             DefaultVocab(),
		Aliases:           map[string]string{},
		Clusters:          []*Cluster{},
		Tracks:            []*Track{},
	}
}

// NewCluster returns a cluster with a fresh id
func NewCluster(name string) *Cluster {
	return &Cluster{
		ClusterID: uuid.New(),
		Name:      name,
		CreatedAt: Now(),
	}
}

// Track returns the track with the given id, or nil
func (c *Catalog) Track(id uuid.UUID) *Track {
	for _, t := range c.Tracks {
		if t.TrackID == id {
			return t
		}
	}
	return nil
}

// Cluster returns the cluster with the given id, or nil
func (c *Catalog) Cluster(id uuid.UUID) *Cluster {
	for _, cl := range c.Clusters {
		if cl.ClusterID == id {
			return cl
		}
	}
	return nil
}

// ClusterTracks returns the members of a cluster in catalog order
func (c *Catalog) ClusterTracks(id uuid.UUID) []*Track {
	var out []*Track
	for _, t := range c.Tracks {
		if t.ClusterID == id {
			out = append(out, t)
		}
	}
	return out
}

// RemoveCluster drops a cluster record. Member tracks are not touched.
func (c *Catalog) RemoveCluster(id uuid.UUID) bool {
	for i, cl := range c.Clusters {
		if cl.ClusterID == id {
			c.Clusters = append(c.Clusters[:i], c.Clusters[i+1:]...)
			return true
		}
	}
	return false
}

// VirtualKeys returns the set of keys in use, optionally skipping tracks
func (c *Catalog) VirtualKeys(skip func(*Track) bool) map[string]struct{} {
	keys := make(map[string]struct{}, len(c.Tracks))
	for _, t := range c.Tracks {
		if t.VirtualKey == "" {
			continue
		}
		if skip != nil && skip(t) {
			continue
		}
		keys[t.VirtualKey] = struct{}{}
	}
	return keys
}
