package store

import (
	"database/sql"
	"fmt"
)

// FileIndexEntry caches tag extraction and filesystem identity per path
// so unchanged files skip re-parsing on subsequent scans.
type FileIndexEntry struct {
	Path           string
	Mtime          int64
	Size           int64
	InodeKey       string
	FileHash       string
	TagAlbum       string
	TagAlbumArtist string
	TagArtist      string
	TagYear        string
	TagTitle       string
	HasTags        bool
	LastScanAt     int64
	LastScanRunID  string
}

// GetFileIndexEntry retrieves a cache row by path, or nil
func (s *Store) GetFileIndexEntry(path string) (*FileIndexEntry, error) {
	e := &FileIndexEntry{}
	err := s.db.QueryRow(`
		SELECT path, mtime, size, inode_key, file_hash,
		       tag_album, tag_album_artist, tag_artist, tag_year, tag_title,
		       has_tags, last_scan_at
		FROM file_index WHERE path = ?
	`, path).Scan(
		&e.Path, &e.Mtime, &e.Size, &e.InodeKey, &e.FileHash,
		&e.TagAlbum, &e.TagAlbumArtist, &e.TagArtist, &e.TagYear, &e.TagTitle,
		&e.HasTags, &e.LastScanAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file index entry: %w", err)
	}
	return e, nil
}

// UpsertFileIndexEntry inserts or replaces a cache row
func (s *Store) UpsertFileIndexEntry(e *FileIndexEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO file_index (path, mtime, size, inode_key, file_hash,
			tag_album, tag_album_artist, tag_artist, tag_year, tag_title,
			has_tags, last_scan_at, last_scan_run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			inode_key = excluded.inode_key,
			file_hash = excluded.file_hash,
			tag_album = excluded.tag_album,
			tag_album_artist = excluded.tag_album_artist,
			tag_artist = excluded.tag_artist,
			tag_year = excluded.tag_year,
			tag_title = excluded.tag_title,
			has_tags = excluded.has_tags,
			last_scan_at = excluded.last_scan_at,
			last_scan_run_id = excluded.last_scan_run_id
	`, e.Path, e.Mtime, e.Size, e.InodeKey, e.FileHash,
		e.TagAlbum, e.TagAlbumArtist, e.TagArtist, e.TagYear, e.TagTitle,
		e.HasTags, e.LastScanAt, e.LastScanRunID)
	if err != nil {
		return fmt.Errorf("failed to upsert file index entry: %w", err)
	}
	return nil
}

// TouchFileIndexEntry bumps the scan stamp on a cache hit
func (s *Store) TouchFileIndexEntry(path string, scanAt int64, runID string) error {
	_, err := s.db.Exec("UPDATE file_index SET last_scan_at = ?, last_scan_run_id = ? WHERE path = ?",
		scanAt, runID, path)
	if err != nil {
		return fmt.Errorf("failed to touch file index entry: %w", err)
	}
	return nil
}

// PruneFileIndex deletes cache rows the given scan run did not touch.
// Only called for full-library runs.
func (s *Store) PruneFileIndex(tx *sql.Tx, runID string) (int64, error) {
	res, err := tx.Exec("DELETE FROM file_index WHERE last_scan_run_id != ?", runID)
	if err != nil {
		return 0, fmt.Errorf("failed to prune file index: %w", err)
	}
	return res.RowsAffected()
}
