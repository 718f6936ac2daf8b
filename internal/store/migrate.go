package store

import (
	"database/sql"
	"fmt"
)

// Migrations are forward-only and additive. v1 creates the baseline
// schema; later versions add columns detected as missing via
// PRAGMA table_info, so databases created by any earlier build upgrade
// in place without data loss.

// v2 additive columns: per-album owned flag and the scan run identifier.
var v2Columns = []struct {
	table  string
	column string
	ddl    string
}{
	{"albums", "owned", "ALTER TABLE albums ADD COLUMN owned INTEGER NOT NULL DEFAULT 1"},
	{"scan_state", "run_id", "ALTER TABLE scan_state ADD COLUMN run_id TEXT NOT NULL DEFAULT ''"},
}

// v4 additive columns: the run identifier stamped on inventory rows by
// each scan. The sweep compares run ids instead of timestamps, because
// unix-second last_seen_at cannot tell two scans in the same second apart.
var v4Columns = []struct {
	table  string
	column string
	ddl    string
}{
	{"artists", "last_seen_run_id", "ALTER TABLE artists ADD COLUMN last_seen_run_id TEXT NOT NULL DEFAULT ''"},
	{"albums", "last_seen_run_id", "ALTER TABLE albums ADD COLUMN last_seen_run_id TEXT NOT NULL DEFAULT ''"},
	{"tracks", "last_seen_run_id", "ALTER TABLE tracks ADD COLUMN last_seen_run_id TEXT NOT NULL DEFAULT ''"},
	{"file_index", "last_scan_run_id", "ALTER TABLE file_index ADD COLUMN last_scan_run_id TEXT NOT NULL DEFAULT ''"},
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if version < 2 {
		for _, col := range v2Columns {
			ok, err := columnExists(tx, col.table, col.column)
			if err != nil {
				return fmt.Errorf("failed to inspect %s.%s: %w", col.table, col.column, err)
			}
			if ok {
				continue
			}
			if _, err := tx.Exec(col.ddl); err != nil {
				return fmt.Errorf("failed to add %s.%s: %w", col.table, col.column, err)
			}
		}
		if err := s.setSchemaVersion(tx, 2); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if version < 3 {
		if _, err := tx.Exec(schemaV3); err != nil {
			return fmt.Errorf("failed to apply schema v3: %w", err)
		}
		if err := s.setSchemaVersion(tx, 3); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if version < 4 {
		for _, col := range v4Columns {
			ok, err := columnExists(tx, col.table, col.column)
			if err != nil {
				return fmt.Errorf("failed to inspect %s.%s: %w", col.table, col.column, err)
			}
			if ok {
				continue
			}
			if _, err := tx.Exec(col.ddl); err != nil {
				return fmt.Errorf("failed to add %s.%s: %w", col.table, col.column, err)
			}
		}
		if err := s.setSchemaVersion(tx, 4); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// columnExists checks PRAGMA table_info for a column
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
