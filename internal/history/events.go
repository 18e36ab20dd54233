package history

import (
	"database/sql"
	"fmt"
	"time"
)

// Kinds of recorded changes
const (
	KindNew       = "new"
	KindUpdated   = "updated"
	KindRelinked  = "relinked"
	KindDuplicate = "duplicate"
	KindMissing   = "missing"
	KindMerge     = "merge"
	KindSplit     = "split"
	KindDelete    = "delete"
	KindLocate    = "locate"
	KindEdit      = "edit"
)

// Change is one recorded catalog change
type Change struct {
	ID         int64
	RunID      int64 // 0 when made outside a scan
	At         time.Time
	Kind       string
	TrackID    string
	ClusterID  string
	VirtualKey string
	Path       string
	OldPath    string
	SHA1       string
	Detail     string
}

// RecordChanges inserts changes in one transaction
func (l *Ledger) RecordChanges(changes []*Change) error {
	if len(changes) == 0 {
		return nil
	}

	return l.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO catalog_events
				(run_id, at_unix_ms, kind, track_id, cluster_id, virtual_key, path, old_path, sha1, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range changes {
			if c.At.IsZero() {
				c.At = time.Now()
			}
			runID := sql.NullInt64{Int64: c.RunID, Valid: c.RunID > 0}
			result, err := stmt.Exec(runID, c.At.UnixMilli(), c.Kind,
				nullString(c.TrackID), nullString(c.ClusterID), nullString(c.VirtualKey),
				nullString(c.Path), nullString(c.OldPath), nullString(c.SHA1), nullString(c.Detail))
			if err != nil {
				return fmt.Errorf("failed to insert change: %w", err)
			}
			if id, err := result.LastInsertId(); err == nil {
				c.ID = id
			}
		}
		return nil
	})
}

// RecordChange inserts a single change
func (l *Ledger) RecordChange(c *Change) error {
	return l.RecordChanges([]*Change{c})
}

// TrackChanges returns every change recorded for a track, oldest first
func (l *Ledger) TrackChanges(trackID string) ([]*Change, error) {
	return l.queryChanges(`WHERE track_id = ? ORDER BY id`, trackID)
}

// RunChanges returns the changes recorded by one run, oldest first
func (l *Ledger) RunChanges(runID int64) ([]*Change, error) {
	return l.queryChanges(`WHERE run_id = ? ORDER BY id`, runID)
}

func (l *Ledger) queryChanges(where string, args ...any) ([]*Change, error) {
	rows, err := l.db.Query(`
		SELECT id, COALESCE(run_id, 0), at_unix_ms, kind,
		       COALESCE(track_id, ''), COALESCE(cluster_id, ''), COALESCE(virtual_key, ''),
		       COALESCE(path, ''), COALESCE(old_path, ''), COALESCE(sha1, ''), COALESCE(detail, '')
		FROM catalog_events `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var out []*Change
	for rows.Next() {
		c := &Change{}
		var at int64
		if err := rows.Scan(&c.ID, &c.RunID, &at, &c.Kind,
			&c.TrackID, &c.ClusterID, &c.VirtualKey,
			&c.Path, &c.OldPath, &c.SHA1, &c.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.At = time.UnixMilli(at)
		out = append(out, c)
	}
	return out, rows.Err()
}
