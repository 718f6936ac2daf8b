package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Album is a logical release owned by the library, keyed by its virtual
// path. The owned flag is user-settable and survives re-scans.
type Album struct {
	ID            int64    `json:"id"`
	Path          string   `json:"path"`
	ArtistID      int64    `json:"artistId"`
	Title         string   `json:"title"`
	Formats       []string `json:"formats"`
	TrackCount    int      `json:"trackCount"`
	LastFileMtime int64    `json:"lastFileMtime"`
	Owned         bool     `json:"owned"`
	Deleted       bool     `json:"deleted"`
	LastSeenAt    int64    `json:"lastSeenAt"`
	LastSeenRunID string   `json:"-"`
	CreatedAt     int64    `json:"createdAt"`
}

// UpsertAlbum inserts or refreshes an album by virtual path. The owned
// flag is only set on first insert; re-scans preserve the user's choice.
func (s *Store) UpsertAlbum(a *Album) (int64, error) {
	formats, err := json.Marshal(a.Formats)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal formats: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO albums (path, artist_id, title, formats, track_count, last_file_mtime, owned, deleted, last_seen_at, last_seen_run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			artist_id = excluded.artist_id,
			title = excluded.title,
			formats = excluded.formats,
			track_count = excluded.track_count,
			last_file_mtime = excluded.last_file_mtime,
			deleted = 0,
			last_seen_at = excluded.last_seen_at,
			last_seen_run_id = excluded.last_seen_run_id
	`, a.Path, a.ArtistID, a.Title, string(formats), a.TrackCount, a.LastFileMtime, a.LastSeenAt, a.LastSeenRunID, a.LastSeenAt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert album: %w", err)
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM albums WHERE path = ?", a.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get album id: %w", err)
	}
	a.ID = id
	return id, nil
}

// GetAlbumByID retrieves an album row, including soft-deleted ones
func (s *Store) GetAlbumByID(id int64) (*Album, error) {
	row := s.db.QueryRow(albumSelect+" WHERE id = ?", id)
	return scanAlbumRow(row)
}

const albumSelect = `
	SELECT id, path, artist_id, title, formats, track_count, last_file_mtime, owned, deleted, last_seen_at, created_at
	FROM albums`

func scanAlbumRow(row *sql.Row) (*Album, error) {
	a := &Album{}
	var formats string
	err := row.Scan(&a.ID, &a.Path, &a.ArtistID, &a.Title, &formats, &a.TrackCount, &a.LastFileMtime, &a.Owned, &a.Deleted, &a.LastSeenAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	if err := json.Unmarshal([]byte(formats), &a.Formats); err != nil {
		a.Formats = nil
	}
	return a, nil
}

func scanAlbumRows(rows *sql.Rows) ([]*Album, error) {
	var albums []*Album
	for rows.Next() {
		a := &Album{}
		var formats string
		err := rows.Scan(&a.ID, &a.Path, &a.ArtistID, &a.Title, &formats, &a.TrackCount, &a.LastFileMtime, &a.Owned, &a.Deleted, &a.LastSeenAt, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		if err := json.Unmarshal([]byte(formats), &a.Formats); err != nil {
			a.Formats = nil
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// SetAlbumOwned toggles the user-settable owned flag.
// Returns false when the album does not exist.
func (s *Store) SetAlbumOwned(id int64, owned bool) (bool, error) {
	res, err := s.db.Exec("UPDATE albums SET owned = ? WHERE id = ?", owned, id)
	if err != nil {
		return false, fmt.Errorf("failed to set owned flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AlbumFilter narrows ListAlbums
type AlbumFilter struct {
	Search   string
	Owned    *bool
	Page     int
	PageSize int
}

// ListAlbums returns live albums matching the filter plus the total count
func (s *Store) ListAlbums(f AlbumFilter) ([]*Album, int, error) {
	where := "WHERE deleted = 0"
	args := []interface{}{}

	if f.Search != "" {
		where += " AND title LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	if f.Owned != nil {
		where += " AND owned = ?"
		args = append(args, *f.Owned)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM albums "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count albums: %w", err)
	}

	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.db.Query(albumSelect+" "+where+" ORDER BY title LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	albums, err := scanAlbumRows(rows)
	return albums, total, err
}

// GetOwnedAlbumsForArtist returns live albums with owned=1 for an artist
func (s *Store) GetOwnedAlbumsForArtist(artistID int64) ([]*Album, error) {
	rows, err := s.db.Query(albumSelect+`
		WHERE artist_id = ? AND deleted = 0 AND owned = 1
		ORDER BY title
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned albums: %w", err)
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// GetAlbumsForArtist returns all live albums for an artist
func (s *Store) GetAlbumsForArtist(artistID int64) ([]*Album, error) {
	rows, err := s.db.Query(albumSelect+`
		WHERE artist_id = ? AND deleted = 0
		ORDER BY title
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// RecentAlbums returns the latest live albums by creation time
func (s *Store) RecentAlbums(limit int) ([]*Album, error) {
	rows, err := s.db.Query(albumSelect+`
		WHERE deleted = 0
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent albums: %w", err)
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// SoftDeleteAlbumsNotSeen sweeps albums the given scan run did not stamp
func (s *Store) SoftDeleteAlbumsNotSeen(tx *sql.Tx, runID string) (int64, error) {
	res, err := tx.Exec(`
		UPDATE albums SET deleted = 1
		WHERE deleted = 0 AND last_seen_run_id != ?
	`, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep albums: %w", err)
	}
	return res.RowsAffected()
}

// CountAlbums counts live albums
func (s *Store) CountAlbums() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM albums WHERE deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count albums: %w", err)
	}
	return count, nil
}
