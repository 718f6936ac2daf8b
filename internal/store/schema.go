package store

// Schema v1 - baseline inventory schema.
// All timestamps are unix seconds; soft-delete rows carry deleted=1 and
// are never cascaded from.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL DEFAULT (unixepoch())
);

-- Singleton service settings
CREATE TABLE IF NOT EXISTS settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  music_dir TEXT NOT NULL DEFAULT '/music',
  scan_recursive INTEGER NOT NULL DEFAULT 1,
  scan_max_depth INTEGER NOT NULL DEFAULT 3,
  updated_at INTEGER NOT NULL DEFAULT 0
);

-- Artists materialized from top-level library directories
CREATE TABLE IF NOT EXISTS artists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL,
  slug TEXT UNIQUE NOT NULL,
  path TEXT NOT NULL DEFAULT '',
  deleted INTEGER NOT NULL DEFAULT 0,
  last_seen_at INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL DEFAULT 0
);

-- Albums keyed by their virtual path (identity key, never a real location)
CREATE TABLE IF NOT EXISTS albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  artist_id INTEGER NOT NULL REFERENCES artists(id),
  title TEXT NOT NULL,
  formats TEXT NOT NULL DEFAULT '[]',
  track_count INTEGER NOT NULL DEFAULT 0,
  last_file_mtime INTEGER NOT NULL DEFAULT 0,
  deleted INTEGER NOT NULL DEFAULT 0,
  last_seen_at INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id);
CREATE INDEX IF NOT EXISTS idx_albums_deleted ON albums(deleted);

CREATE TABLE IF NOT EXISTS tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  album_id INTEGER NOT NULL REFERENCES albums(id),
  ext TEXT NOT NULL,
  mtime INTEGER NOT NULL DEFAULT 0,
  deleted INTEGER NOT NULL DEFAULT 0,
  last_seen_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);

-- Per-path tag extraction cache; rows not touched by a full scan are pruned
CREATE TABLE IF NOT EXISTS file_index (
  path TEXT PRIMARY KEY,
  mtime INTEGER NOT NULL,
  size INTEGER NOT NULL,
  inode_key TEXT NOT NULL DEFAULT '',
  file_hash TEXT NOT NULL DEFAULT '',
  tag_album TEXT NOT NULL DEFAULT '',
  tag_album_artist TEXT NOT NULL DEFAULT '',
  tag_artist TEXT NOT NULL DEFAULT '',
  tag_year TEXT NOT NULL DEFAULT '',
  tag_title TEXT NOT NULL DEFAULT '',
  has_tags INTEGER NOT NULL DEFAULT 0,
  last_scan_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_file_index_scan ON file_index(last_scan_at);

-- Per-scan skip ledger
CREATE TABLE IF NOT EXISTS scan_skipped (
  scan_started_at INTEGER NOT NULL,
  file_path TEXT NOT NULL,
  reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_skipped_started ON scan_skipped(scan_started_at);

-- Singleton scan progress row
CREATE TABLE IF NOT EXISTS scan_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  status TEXT NOT NULL DEFAULT 'idle',
  started_at INTEGER NOT NULL DEFAULT 0,
  finished_at INTEGER NOT NULL DEFAULT 0,
  scanned_files INTEGER NOT NULL DEFAULT 0,
  skipped_files INTEGER NOT NULL DEFAULT 0,
  current_path TEXT NOT NULL DEFAULT '',
  skipped_reasons_json TEXT NOT NULL DEFAULT '{}',
  error TEXT NOT NULL DEFAULT ''
);

-- Expected discography per artist, synced from the metadata service
CREATE TABLE IF NOT EXISTS expected_artists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist_id INTEGER UNIQUE NOT NULL REFERENCES artists(id),
  mbid TEXT UNIQUE NOT NULL,
  name TEXT NOT NULL,
  updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS expected_albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  expected_artist_id INTEGER NOT NULL REFERENCES expected_artists(id),
  mb_release_group_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  normalized_title TEXT NOT NULL,
  primary_type TEXT NOT NULL DEFAULT '',
  secondary_types TEXT NOT NULL DEFAULT '[]',
  year INTEGER,
  updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_expected_albums_rgid
  ON expected_albums(expected_artist_id, mb_release_group_id)
  WHERE mb_release_group_id != '';
CREATE INDEX IF NOT EXISTS idx_expected_albums_artist ON expected_albums(expected_artist_id);

CREATE TABLE IF NOT EXISTS expected_ignored_albums (
  artist_id INTEGER NOT NULL REFERENCES artists(id),
  expected_album_id INTEGER NOT NULL REFERENCES expected_albums(id),
  PRIMARY KEY (artist_id, expected_album_id)
);

CREATE TABLE IF NOT EXISTS expected_artist_settings (
  artist_id INTEGER PRIMARY KEY REFERENCES artists(id),
  include_live INTEGER NOT NULL DEFAULT 0,
  include_compilations INTEGER NOT NULL DEFAULT 0
);

-- 1:1 user override binding an expected release to an owned album
CREATE TABLE IF NOT EXISTS album_match_overrides (
  expected_album_id INTEGER UNIQUE NOT NULL REFERENCES expected_albums(id),
  owned_album_id INTEGER UNIQUE NOT NULL REFERENCES albums(id)
);

-- Legacy linkage kept for the artist overview endpoint
CREATE TABLE IF NOT EXISTS wanted_albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist_id INTEGER NOT NULL REFERENCES artists(id),
  title TEXT NOT NULL,
  year INTEGER,
  source TEXT NOT NULL DEFAULT 'manual',
  created_at INTEGER NOT NULL DEFAULT 0,
  UNIQUE (artist_id, title)
);

CREATE TABLE IF NOT EXISTS album_aliases (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  album_id INTEGER NOT NULL REFERENCES albums(id),
  alias TEXT NOT NULL,
  UNIQUE (album_id, alias)
);
`

// Schema v3 - wishlist
const schemaV3 = `
CREATE TABLE IF NOT EXISTS wishlist_albums (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  expected_album_id INTEGER UNIQUE NOT NULL REFERENCES expected_albums(id),
  status TEXT NOT NULL DEFAULT 'wanted',
  created_at INTEGER NOT NULL DEFAULT 0
);
`
