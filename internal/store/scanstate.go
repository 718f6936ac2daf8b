package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Scan lifecycle states
const (
	ScanStatusIdle      = "idle"
	ScanStatusRunning   = "running"
	ScanStatusCancelled = "cancelled"
	ScanStatusError     = "error"
)

// ScanState is the singleton progress row mutated throughout a scan
type ScanState struct {
	Status         string         `json:"status"`
	RunID          string         `json:"runId"`
	StartedAt      int64          `json:"startedAt"`
	FinishedAt     int64          `json:"finishedAt"`
	ScannedFiles   int            `json:"scannedFiles"`
	SkippedFiles   int            `json:"skippedFiles"`
	CurrentPath    string         `json:"currentPath"`
	SkippedReasons map[string]int `json:"skippedReasonsBreakdown"`
	Error          string         `json:"error,omitempty"`
}

// GetScanState reads the singleton row; a fresh database yields idle
func (s *Store) GetScanState() (*ScanState, error) {
	st := &ScanState{}
	var reasons string
	err := s.db.QueryRow(`
		SELECT status, run_id, started_at, finished_at, scanned_files, skipped_files,
		       current_path, skipped_reasons_json, error
		FROM scan_state WHERE id = 1
	`).Scan(&st.Status, &st.RunID, &st.StartedAt, &st.FinishedAt,
		&st.ScannedFiles, &st.SkippedFiles, &st.CurrentPath, &reasons, &st.Error)
	if err == sql.ErrNoRows {
		return &ScanState{Status: ScanStatusIdle, SkippedReasons: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan state: %w", err)
	}

	if err := json.Unmarshal([]byte(reasons), &st.SkippedReasons); err != nil {
		st.SkippedReasons = map[string]int{}
	}
	return st, nil
}

// SaveScanState writes the singleton row
func (s *Store) SaveScanState(st *ScanState) error {
	reasons, err := json.Marshal(st.SkippedReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal skip reasons: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scan_state (id, status, run_id, started_at, finished_at,
			scanned_files, skipped_files, current_path, skipped_reasons_json, error)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			run_id = excluded.run_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			scanned_files = excluded.scanned_files,
			skipped_files = excluded.skipped_files,
			current_path = excluded.current_path,
			skipped_reasons_json = excluded.skipped_reasons_json,
			error = excluded.error
	`, st.Status, st.RunID, st.StartedAt, st.FinishedAt,
		st.ScannedFiles, st.SkippedFiles, st.CurrentPath, string(reasons), st.Error)
	if err != nil {
		return fmt.Errorf("failed to save scan state: %w", err)
	}
	return nil
}
