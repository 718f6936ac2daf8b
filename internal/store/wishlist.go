package store

import (
	"database/sql"
	"fmt"
)

// WishlistAlbum marks an expected release the user wants to acquire
type WishlistAlbum struct {
	ID              int64  `json:"id"`
	ExpectedAlbumID int64  `json:"expectedAlbumId"`
	Status          string `json:"status"`
	CreatedAt       int64  `json:"createdAt"`
}

// AddToWishlist inserts a wishlist row; adding the same release twice is
// a no-op.
func (s *Store) AddToWishlist(expectedAlbumID int64, createdAt int64) error {
	_, err := s.db.Exec(`
		INSERT INTO wishlist_albums (expected_album_id, status, created_at)
		VALUES (?, 'wanted', ?)
		ON CONFLICT(expected_album_id) DO NOTHING
	`, expectedAlbumID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return nil
}

// ListWishlist returns all wishlist rows, newest first
func (s *Store) ListWishlist() ([]*WishlistAlbum, error) {
	rows, err := s.db.Query(`
		SELECT id, expected_album_id, status, created_at
		FROM wishlist_albums ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist: %w", err)
	}
	defer rows.Close()

	var items []*WishlistAlbum
	for rows.Next() {
		w := &WishlistAlbum{}
		if err := rows.Scan(&w.ID, &w.ExpectedAlbumID, &w.Status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist row: %w", err)
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// CountWishlist counts wishlist rows
func (s *Store) CountWishlist() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM wishlist_albums").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count wishlist: %w", err)
	}
	return count, nil
}

// WantedAlbum is the legacy manually-curated expectation, kept only for
// the artist overview endpoint.
type WantedAlbum struct {
	ID        int64  `json:"id"`
	ArtistID  int64  `json:"artistId"`
	Title     string `json:"title"`
	Year      *int   `json:"year"`
	Source    string `json:"source"`
	CreatedAt int64  `json:"createdAt"`
}

// AddWantedAlbum inserts a legacy wanted row; duplicates by title are no-ops
func (s *Store) AddWantedAlbum(artistID int64, title string, year *int, source string, createdAt int64) error {
	_, err := s.db.Exec(`
		INSERT INTO wanted_albums (artist_id, title, year, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(artist_id, title) DO NOTHING
	`, artistID, title, year, source, createdAt)
	if err != nil {
		return fmt.Errorf("failed to add wanted album: %w", err)
	}
	return nil
}

// GetWantedAlbums returns the legacy wanted list for an artist
func (s *Store) GetWantedAlbums(artistID int64) ([]*WantedAlbum, error) {
	rows, err := s.db.Query(`
		SELECT id, artist_id, title, year, source, created_at
		FROM wanted_albums WHERE artist_id = ?
		ORDER BY title
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wanted albums: %w", err)
	}
	defer rows.Close()

	var wanted []*WantedAlbum
	for rows.Next() {
		w := &WantedAlbum{}
		var year sql.NullInt64
		if err := rows.Scan(&w.ID, &w.ArtistID, &w.Title, &year, &w.Source, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wanted album: %w", err)
		}
		if year.Valid {
			y := int(year.Int64)
			w.Year = &y
		}
		wanted = append(wanted, w)
	}
	return wanted, rows.Err()
}

// GetAlbumAliases returns alias -> albumID for an artist's albums
func (s *Store) GetAlbumAliases(artistID int64) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT aa.alias, aa.album_id
		FROM album_aliases aa
		JOIN albums a ON a.id = aa.album_id
		WHERE a.artist_id = ?
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query album aliases: %w", err)
	}
	defer rows.Close()

	aliases := make(map[string]int64)
	for rows.Next() {
		var alias string
		var albumID int64
		if err := rows.Scan(&alias, &albumID); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases[alias] = albumID
	}
	return aliases, rows.Err()
}

// AddAlbumAlias records an alternate title for an owned album
func (s *Store) AddAlbumAlias(albumID int64, alias string) error {
	_, err := s.db.Exec(`
		INSERT INTO album_aliases (album_id, alias)
		VALUES (?, ?)
		ON CONFLICT(album_id, alias) DO NOTHING
	`, albumID, alias)
	if err != nil {
		return fmt.Errorf("failed to add album alias: %w", err)
	}
	return nil
}
