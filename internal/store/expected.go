package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// ExpectedArtist links an inventory artist to its external identity
type ExpectedArtist struct {
	ID        int64  `json:"id"`
	ArtistID  int64  `json:"artistId"`
	MBID      string `json:"mbid"`
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ExpectedAlbum is one release-group the artist is expected to have
type ExpectedAlbum struct {
	ID               int64    `json:"id"`
	ExpectedArtistID int64    `json:"expectedArtistId"`
	MBReleaseGroupID string   `json:"mbReleaseGroupId"`
	Title            string   `json:"title"`
	NormalizedTitle  string   `json:"normalizedTitle"`
	PrimaryType      string   `json:"primaryType"`
	SecondaryTypes   []string `json:"secondaryTypes"`
	Year             *int     `json:"year"`
	UpdatedAt        int64    `json:"updatedAt"`
}

// ArtistSettings holds per-artist inclusion rules for the summary
type ArtistSettings struct {
	ArtistID            int64 `json:"artistId"`
	IncludeLive         bool  `json:"includeLive"`
	IncludeCompilations bool  `json:"includeCompilations"`
}

// GetExpectedArtist retrieves the external link row for an artist, or nil
func (s *Store) GetExpectedArtist(artistID int64) (*ExpectedArtist, error) {
	ea := &ExpectedArtist{}
	err := s.db.QueryRow(`
		SELECT id, artist_id, mbid, name, updated_at
		FROM expected_artists WHERE artist_id = ?
	`, artistID).Scan(&ea.ID, &ea.ArtistID, &ea.MBID, &ea.Name, &ea.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expected artist: %w", err)
	}
	return ea, nil
}

// UpsertExpectedArtist inserts or refreshes the external link for an artist
func (s *Store) UpsertExpectedArtist(artistID int64, mbid, name string, updatedAt int64) (*ExpectedArtist, error) {
	_, err := s.db.Exec(`
		INSERT INTO expected_artists (artist_id, mbid, name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
			mbid = excluded.mbid,
			name = excluded.name,
			updated_at = excluded.updated_at
	`, artistID, mbid, name, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert expected artist: %w", err)
	}
	return s.GetExpectedArtist(artistID)
}

// UpsertExpectedAlbumTx writes one release inside a sync transaction.
// Releases with an external id upsert on (expected_artist_id, rgid);
// the rare id-less release is inserted as-is.
func (s *Store) UpsertExpectedAlbumTx(tx *sql.Tx, ea *ExpectedAlbum) error {
	secondary, err := json.Marshal(ea.SecondaryTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal secondary types: %w", err)
	}

	if ea.MBReleaseGroupID != "" {
		_, err = tx.Exec(`
			INSERT INTO expected_albums (expected_artist_id, mb_release_group_id, title,
				normalized_title, primary_type, secondary_types, year, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(expected_artist_id, mb_release_group_id) WHERE mb_release_group_id != '' DO UPDATE SET
				title = excluded.title,
				normalized_title = excluded.normalized_title,
				primary_type = excluded.primary_type,
				secondary_types = excluded.secondary_types,
				year = excluded.year,
				updated_at = excluded.updated_at
		`, ea.ExpectedArtistID, ea.MBReleaseGroupID, ea.Title,
			ea.NormalizedTitle, ea.PrimaryType, string(secondary), ea.Year, ea.UpdatedAt)
	} else {
		_, err = tx.Exec(`
			INSERT INTO expected_albums (expected_artist_id, mb_release_group_id, title,
				normalized_title, primary_type, secondary_types, year, updated_at)
			VALUES (?, '', ?, ?, ?, ?, ?, ?)
		`, ea.ExpectedArtistID, ea.Title,
			ea.NormalizedTitle, ea.PrimaryType, string(secondary), ea.Year, ea.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert expected album: %w", err)
	}
	return nil
}

// PruneExpectedAlbumsTx removes releases for an artist that the sync at
// syncAt did not refresh. Runs in the same transaction as the upserts so
// readers never see a half-pruned discography.
func (s *Store) PruneExpectedAlbumsTx(tx *sql.Tx, expectedArtistID, syncAt int64) (int64, error) {
	res, err := tx.Exec(`
		DELETE FROM expected_albums
		WHERE expected_artist_id = ? AND updated_at < ?
	`, expectedArtistID, syncAt)
	if err != nil {
		return 0, fmt.Errorf("failed to prune expected albums: %w", err)
	}
	return res.RowsAffected()
}

// GetExpectedAlbums returns the synced discography for an artist
func (s *Store) GetExpectedAlbums(expectedArtistID int64) ([]*ExpectedAlbum, error) {
	rows, err := s.db.Query(`
		SELECT id, expected_artist_id, mb_release_group_id, title, normalized_title,
		       primary_type, secondary_types, year, updated_at
		FROM expected_albums WHERE expected_artist_id = ?
		ORDER BY year, title
	`, expectedArtistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expected albums: %w", err)
	}
	defer rows.Close()

	var albums []*ExpectedAlbum
	for rows.Next() {
		ea := &ExpectedAlbum{}
		var secondary string
		var year sql.NullInt64
		err := rows.Scan(&ea.ID, &ea.ExpectedArtistID, &ea.MBReleaseGroupID, &ea.Title,
			&ea.NormalizedTitle, &ea.PrimaryType, &secondary, &year, &ea.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expected album: %w", err)
		}
		if year.Valid {
			y := int(year.Int64)
			ea.Year = &y
		}
		if err := json.Unmarshal([]byte(secondary), &ea.SecondaryTypes); err != nil {
			ea.SecondaryTypes = nil
		}
		albums = append(albums, ea)
	}
	return albums, rows.Err()
}

// GetExpectedAlbumByID retrieves one expected album, or nil
func (s *Store) GetExpectedAlbumByID(id int64) (*ExpectedAlbum, error) {
	ea := &ExpectedAlbum{}
	var secondary string
	var year sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, expected_artist_id, mb_release_group_id, title, normalized_title,
		       primary_type, secondary_types, year, updated_at
		FROM expected_albums WHERE id = ?
	`, id).Scan(&ea.ID, &ea.ExpectedArtistID, &ea.MBReleaseGroupID, &ea.Title,
		&ea.NormalizedTitle, &ea.PrimaryType, &secondary, &year, &ea.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expected album: %w", err)
	}
	if year.Valid {
		y := int(year.Int64)
		ea.Year = &y
	}
	if err := json.Unmarshal([]byte(secondary), &ea.SecondaryTypes); err != nil {
		ea.SecondaryTypes = nil
	}
	return ea, nil
}

// IgnoreExpectedAlbum marks a release as deliberately not wanted. Idempotent.
func (s *Store) IgnoreExpectedAlbum(artistID, expectedAlbumID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO expected_ignored_albums (artist_id, expected_album_id)
		VALUES (?, ?)
		ON CONFLICT(artist_id, expected_album_id) DO NOTHING
	`, artistID, expectedAlbumID)
	if err != nil {
		return fmt.Errorf("failed to ignore expected album: %w", err)
	}
	return nil
}

// UnignoreExpectedAlbum clears an ignore mark. Idempotent.
func (s *Store) UnignoreExpectedAlbum(artistID, expectedAlbumID int64) error {
	_, err := s.db.Exec(`
		DELETE FROM expected_ignored_albums
		WHERE artist_id = ? AND expected_album_id = ?
	`, artistID, expectedAlbumID)
	if err != nil {
		return fmt.Errorf("failed to unignore expected album: %w", err)
	}
	return nil
}

// GetIgnoredExpectedAlbumIDs returns the ignored set for an artist
func (s *Store) GetIgnoredExpectedAlbumIDs(artistID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(`
		SELECT expected_album_id FROM expected_ignored_albums WHERE artist_id = ?
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ignored albums: %w", err)
	}
	defer rows.Close()

	ignored := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ignored id: %w", err)
		}
		ignored[id] = true
	}
	return ignored, rows.Err()
}

// GetArtistSettings returns the inclusion rules; missing rows default
// to excluding live and compilation releases.
func (s *Store) GetArtistSettings(artistID int64) (*ArtistSettings, error) {
	as := &ArtistSettings{ArtistID: artistID}
	err := s.db.QueryRow(`
		SELECT include_live, include_compilations
		FROM expected_artist_settings WHERE artist_id = ?
	`, artistID).Scan(&as.IncludeLive, &as.IncludeCompilations)
	if err == sql.ErrNoRows {
		return as, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artist settings: %w", err)
	}
	return as, nil
}

// UpsertArtistSettings writes the inclusion rules for an artist
func (s *Store) UpsertArtistSettings(as *ArtistSettings) error {
	_, err := s.db.Exec(`
		INSERT INTO expected_artist_settings (artist_id, include_live, include_compilations)
		VALUES (?, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
			include_live = excluded.include_live,
			include_compilations = excluded.include_compilations
	`, as.ArtistID, as.IncludeLive, as.IncludeCompilations)
	if err != nil {
		return fmt.Errorf("failed to upsert artist settings: %w", err)
	}
	return nil
}

// GetMatchOverrides returns expectedAlbumID -> ownedAlbumID for an artist's
// expected albums
func (s *Store) GetMatchOverrides(expectedArtistID int64) (map[int64]int64, error) {
	rows, err := s.db.Query(`
		SELECT o.expected_album_id, o.owned_album_id
		FROM album_match_overrides o
		JOIN expected_albums e ON e.id = o.expected_album_id
		WHERE e.expected_artist_id = ?
	`, expectedArtistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[int64]int64)
	for rows.Next() {
		var expectedID, ownedID int64
		if err := rows.Scan(&expectedID, &ownedID); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides[expectedID] = ownedID
	}
	return overrides, rows.Err()
}

// SetMatchOverride binds an expected release to an owned album 1:1,
// replacing any previous binding on either side.
func (s *Store) SetMatchOverride(expectedAlbumID, ownedAlbumID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM album_match_overrides WHERE expected_album_id = ? OR owned_album_id = ?",
			expectedAlbumID, ownedAlbumID); err != nil {
			return fmt.Errorf("failed to clear previous override: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO album_match_overrides (expected_album_id, owned_album_id) VALUES (?, ?)",
			expectedAlbumID, ownedAlbumID); err != nil {
			return fmt.Errorf("failed to set override: %w", err)
		}
		return nil
	})
}
