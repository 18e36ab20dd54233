package history

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one recorded reconciliation pass
type Run struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	RawRoot      string
	CatalogPath  string
	FilesScanned int
	FilesHashed  int
	BytesHashed  int64
	New          int
	Updated      int
	Relinked     int
	Duplicates   int
	Missing      int
	Tracks       int
	Error        string
}

// Duration returns how long the run took
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StartRun inserts a run row and sets r.ID
func (l *Ledger) StartRun(r *Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	result, err := l.db.Exec(`
		INSERT INTO scan_runs (started_unix_ms, raw_root, catalog_path)
		VALUES (?, ?, ?)
	`, r.StartedAt.UnixMilli(), r.RawRoot, r.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	r.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run ID: %w", err)
	}
	return nil
}

// FinishRun stores the counts and end time of a run
func (l *Ledger) FinishRun(r *Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	_, err := l.db.Exec(`
		UPDATE scan_runs SET
			finished_unix_ms = ?, files_scanned = ?, files_hashed = ?, bytes_hashed = ?,
			new_count = ?, updated_count = ?, relinked_count = ?, duplicate_count = ?,
			missing_count = ?, track_count = ?, error = ?
		WHERE id = ?
	`, r.FinishedAt.UnixMilli(), r.FilesScanned, r.FilesHashed, r.BytesHashed,
		r.New, r.Updated, r.Relinked, r.Duplicates,
		r.Missing, r.Tracks, nullString(r.Error), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (l *Ledger) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(`
		SELECT id, started_unix_ms, COALESCE(finished_unix_ms, 0), raw_root, COALESCE(catalog_path, ''),
		       files_scanned, files_hashed, bytes_hashed,
		       new_count, updated_count, relinked_count, duplicate_count, missing_count,
		       track_count, COALESCE(error, '')
		FROM scan_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var started, finished int64
		if err := rows.Scan(
			&r.ID, &started, &finished, &r.RawRoot, &r.CatalogPath,
			&r.FilesScanned, &r.FilesHashed, &r.BytesHashed,
			&r.New, &r.Updated, &r.Relinked, &r.Duplicates, &r.Missing,
			&r.Tracks, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// GetRun returns one run, or nil if it does not exist
func (l *Ledger) GetRun(id int64) (*Run, error) {
	r := &Run{}
	var started, finished int64
	err := l.db.QueryRow(`
		SELECT id, started_unix_ms, COALESCE(finished_unix_ms, 0), raw_root, COALESCE(catalog_path, ''),
		       new_count, updated_count, relinked_count, duplicate_count, missing_count, track_count,
		       COALESCE(error, '')
		FROM scan_runs WHERE id = ?
	`, id).Scan(&r.ID, &started, &finished, &r.RawRoot, &r.CatalogPath,
		&r.New, &r.Updated, &r.Relinked, &r.Duplicates, &r.Missing, &r.Tracks, &r.Error)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	r.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished)
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
