package store

import "fmt"

// LibraryStats is the headline inventory count set
type LibraryStats struct {
	Artists    int   `json:"artists"`
	Albums     int   `json:"albums"`
	Tracks     int   `json:"tracks"`
	LastScanAt int64 `json:"lastScanAt"`
}

// GetLibraryStats collects the counts the stats and dashboard endpoints serve
func (s *Store) GetLibraryStats() (*LibraryStats, error) {
	stats := &LibraryStats{}
	var err error

	if stats.Artists, err = s.CountArtists(); err != nil {
		return nil, err
	}
	if stats.Albums, err = s.CountAlbums(); err != nil {
		return nil, err
	}
	if stats.Tracks, err = s.CountTracks(); err != nil {
		return nil, err
	}

	state, err := s.GetScanState()
	if err != nil {
		return nil, err
	}
	if state.Status == ScanStatusRunning {
		stats.LastScanAt = state.StartedAt
	} else {
		stats.LastScanAt = state.FinishedAt
	}

	return stats, nil
}

// CountExpectedAlbums counts synced expected releases across all artists
func (s *Store) CountExpectedAlbums() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM expected_albums").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expected albums: %w", err)
	}
	return count, nil
}

// ListExpectedArtistIDs returns artist ids that have a synced discography
func (s *Store) ListExpectedArtistIDs() ([]int64, error) {
	rows, err := s.db.Query("SELECT artist_id FROM expected_artists ORDER BY artist_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query expected artists: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artist id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
