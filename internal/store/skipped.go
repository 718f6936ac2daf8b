package store

import "fmt"

// SkippedFile is one row of the per-scan skip ledger
type SkippedFile struct {
	ScanStartedAt int64  `json:"scanStartedAt"`
	FilePath      string `json:"filePath"`
	Reason        string `json:"reason"`
}

// ClearSkippedBefore drops ledger rows from scans older than the given start
func (s *Store) ClearSkippedBefore(scanStartedAt int64) error {
	_, err := s.db.Exec("DELETE FROM scan_skipped WHERE scan_started_at < ?", scanStartedAt)
	if err != nil {
		return fmt.Errorf("failed to clear skip ledger: %w", err)
	}
	return nil
}

// InsertSkipped records one skip decision
func (s *Store) InsertSkipped(scanStartedAt int64, filePath, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_skipped (scan_started_at, file_path, reason)
		VALUES (?, ?, ?)
	`, scanStartedAt, filePath, reason)
	if err != nil {
		return fmt.Errorf("failed to record skip: %w", err)
	}
	return nil
}

// ListSkipped returns ledger rows for the most recent scan, newest first
func (s *Store) ListSkipped(limit int) ([]*SkippedFile, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := s.db.Query(`
		SELECT scan_started_at, file_path, reason
		FROM scan_skipped
		ORDER BY rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query skip ledger: %w", err)
	}
	defer rows.Close()

	var skipped []*SkippedFile
	for rows.Next() {
		sk := &SkippedFile{}
		if err := rows.Scan(&sk.ScanStartedAt, &sk.FilePath, &sk.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan skip row: %w", err)
		}
		skipped = append(skipped, sk)
	}
	return skipped, rows.Err()
}
