package store

import (
	"database/sql"
	"fmt"
)

// Track is a single on-disk audio file admitted into an album
type Track struct {
	ID            int64  `json:"id"`
	Path          string `json:"path"`
	AlbumID       int64  `json:"albumId"`
	Ext           string `json:"ext"`
	Mtime         int64  `json:"mtime"`
	Deleted       bool   `json:"deleted"`
	LastSeenAt    int64  `json:"lastSeenAt"`
	LastSeenRunID string `json:"-"`
}

// UpsertTrack inserts or refreshes a track by path
func (s *Store) UpsertTrack(t *Track) error {
	_, err := s.db.Exec(`
		INSERT INTO tracks (path, album_id, ext, mtime, deleted, last_seen_at, last_seen_run_id)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			album_id = excluded.album_id,
			ext = excluded.ext,
			mtime = excluded.mtime,
			deleted = 0,
			last_seen_at = excluded.last_seen_at,
			last_seen_run_id = excluded.last_seen_run_id
	`, t.Path, t.AlbumID, t.Ext, t.Mtime, t.LastSeenAt, t.LastSeenRunID)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}
	return nil
}

// GetTracksForAlbum returns live tracks for an album ordered by path
func (s *Store) GetTracksForAlbum(albumID int64) ([]*Track, error) {
	rows, err := s.db.Query(`
		SELECT id, path, album_id, ext, mtime, deleted, last_seen_at
		FROM tracks WHERE album_id = ? AND deleted = 0
		ORDER BY path
	`, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		t := &Track{}
		if err := rows.Scan(&t.ID, &t.Path, &t.AlbumID, &t.Ext, &t.Mtime, &t.Deleted, &t.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// SoftDeleteTracksNotSeen sweeps tracks the given scan run did not stamp
func (s *Store) SoftDeleteTracksNotSeen(tx *sql.Tx, runID string) (int64, error) {
	res, err := tx.Exec(`
		UPDATE tracks SET deleted = 1
		WHERE deleted = 0 AND last_seen_run_id != ?
	`, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep tracks: %w", err)
	}
	return res.RowsAffected()
}

// CountTracks counts live tracks
func (s *Store) CountTracks() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM tracks WHERE deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}
