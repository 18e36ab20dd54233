package history

// Schema v1 - runs and change records
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per reconciliation pass
CREATE TABLE IF NOT EXISTS scan_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_unix_ms INTEGER NOT NULL,
  finished_unix_ms INTEGER,
  raw_root TEXT NOT NULL,
  catalog_path TEXT,
  files_scanned INTEGER DEFAULT 0,
  files_hashed INTEGER DEFAULT 0,
  bytes_hashed INTEGER DEFAULT 0,
  new_count INTEGER DEFAULT 0,
  updated_count INTEGER DEFAULT 0,
  relinked_count INTEGER DEFAULT 0,
  duplicate_count INTEGER DEFAULT 0,
  missing_count INTEGER DEFAULT 0,
  track_count INTEGER DEFAULT 0,
  error TEXT
);

-- Individual catalog changes, from scans and from edits
CREATE TABLE IF NOT EXISTS catalog_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id INTEGER REFERENCES scan_runs(id) ON DELETE SET NULL,
  at_unix_ms INTEGER NOT NULL,
  kind TEXT NOT NULL,
  track_id TEXT,
  cluster_id TEXT,
  virtual_key TEXT,
  path TEXT,
  old_path TEXT,
  sha1 TEXT,
  detail TEXT
);
`

// Schema v2 - lookup indexes
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_catalog_events_track ON catalog_events(track_id, id);
CREATE INDEX IF NOT EXISTS idx_catalog_events_run ON catalog_events(run_id);
CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_unix_ms);
`
