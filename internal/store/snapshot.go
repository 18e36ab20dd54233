package store

import (
	"errors"
	"io/fs"
	"os"
)

// Snapshot identifies one version of the catalog file on disk
type Snapshot struct {
	ModTimeNs int64
	Size      int64
}

// IsZero reports whether the snapshot was never taken
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}

// Snapshot stats the catalog file. A missing file yields a zero snapshot
// and no error.
func (s *Store) Snapshot() (Snapshot, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ModTimeNs: info.ModTime().UnixNano(), Size: info.Size()}, nil
}
