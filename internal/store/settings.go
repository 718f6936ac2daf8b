package store

import (
	"database/sql"
	"fmt"
)

// Settings is the singleton service settings row. The music dir defaults
// to the environment-provided mount until the user overrides it.
type Settings struct {
	MusicDir      string `json:"musicDir"`
	ScanRecursive bool   `json:"scanRecursive"`
	ScanMaxDepth  int    `json:"scanMaxDepth"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// GetSettings reads the singleton row, falling back to defaults
func (s *Store) GetSettings() (*Settings, error) {
	set := &Settings{}
	err := s.db.QueryRow(`
		SELECT music_dir, scan_recursive, scan_max_depth, updated_at
		FROM settings WHERE id = 1
	`).Scan(&set.MusicDir, &set.ScanRecursive, &set.ScanMaxDepth, &set.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Settings{MusicDir: "/music", ScanRecursive: true, ScanMaxDepth: 3}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return set, nil
}

// SaveSettings writes the singleton row
func (s *Store) SaveSettings(set *Settings) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (id, music_dir, scan_recursive, scan_max_depth, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			music_dir = excluded.music_dir,
			scan_recursive = excluded.scan_recursive,
			scan_max_depth = excluded.scan_max_depth,
			updated_at = excluded.updated_at
	`, set.MusicDir, set.ScanRecursive, set.ScanMaxDepth, set.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
