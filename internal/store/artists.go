package store

import (
	"database/sql"
	"fmt"
)

// Artist is a top-level library directory materialized as an inventory row
type Artist struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Path       string `json:"path"`
	Deleted    bool   `json:"deleted"`
	LastSeenAt int64  `json:"lastSeenAt"`
	CreatedAt  int64  `json:"createdAt"`
}

// UpsertArtist inserts or refreshes an artist by name, clearing the
// soft-delete flag and stamping the sighting with the scan run id.
// Returns the row id.
func (s *Store) UpsertArtist(name, slug, path string, seenAt int64, runID string) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO artists (name, slug, path, deleted, last_seen_at, last_seen_run_id, created_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			slug = excluded.slug,
			path = excluded.path,
			deleted = 0,
			last_seen_at = excluded.last_seen_at,
			last_seen_run_id = excluded.last_seen_run_id
	`, name, slug, path, seenAt, runID, seenAt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert artist: %w", err)
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM artists WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get artist id: %w", err)
	}
	return id, nil
}

// GetArtistByID retrieves an artist row, including soft-deleted ones
func (s *Store) GetArtistByID(id int64) (*Artist, error) {
	return s.scanArtist(s.db.QueryRow(`
		SELECT id, name, slug, path, deleted, last_seen_at, created_at
		FROM artists WHERE id = ?
	`, id))
}

// GetArtistBySlug retrieves a live artist by slug
func (s *Store) GetArtistBySlug(slug string) (*Artist, error) {
	return s.scanArtist(s.db.QueryRow(`
		SELECT id, name, slug, path, deleted, last_seen_at, created_at
		FROM artists WHERE slug = ? AND deleted = 0
	`, slug))
}

// GetArtistByName retrieves a live artist by exact name
func (s *Store) GetArtistByName(name string) (*Artist, error) {
	return s.scanArtist(s.db.QueryRow(`
		SELECT id, name, slug, path, deleted, last_seen_at, created_at
		FROM artists WHERE name = ? AND deleted = 0
	`, name))
}

func (s *Store) scanArtist(row *sql.Row) (*Artist, error) {
	a := &Artist{}
	err := row.Scan(&a.ID, &a.Name, &a.Slug, &a.Path, &a.Deleted, &a.LastSeenAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	return a, nil
}

// ListArtists returns all live artists ordered by name
func (s *Store) ListArtists() ([]*Artist, error) {
	rows, err := s.db.Query(`
		SELECT id, name, slug, path, deleted, last_seen_at, created_at
		FROM artists WHERE deleted = 0
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*Artist
	for rows.Next() {
		a := &Artist{}
		if err := rows.Scan(&a.ID, &a.Name, &a.Slug, &a.Path, &a.Deleted, &a.LastSeenAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// SoftDeleteArtistsNotSeen marks artists the given scan run did not
// stamp. User-owned columns are untouched.
func (s *Store) SoftDeleteArtistsNotSeen(tx *sql.Tx, runID string) (int64, error) {
	res, err := tx.Exec(`
		UPDATE artists SET deleted = 1
		WHERE deleted = 0 AND last_seen_run_id != ?
	`, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep artists: %w", err)
	}
	return res.RowsAffected()
}

// CountArtists counts live artists
func (s *Store) CountArtists() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM artists WHERE deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artists: %w", err)
	}
	return count, nil
}
