package vault

import (
	"database/sql"
	"errors"
	"fmt"
)

// Schema version constants
const (
	// SchemaVersion1 is the original items-only mirror
	SchemaVersion1 = 1
	// SchemaVersion2 adds updated_at, the name index and sync_state
	SchemaVersion2 = 2
	// CurrentSchemaVersion is the current schema version
	CurrentSchemaVersion = SchemaVersion2
)

// getSchemaVersion returns the stored schema version, or 1 for a database
// created before versions were recorded.
func getSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaVersion1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vault: failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaVersion1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vault: failed to get schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("vault: failed to create schema_version table: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("vault: failed to set schema version: %w", err)
	}
	return nil
}

// migrateSchema brings db up to CurrentSchemaVersion.
func migrateSchema(db *sql.DB) error {
	version, err := getSchemaVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("vault: database schema v%d is newer than supported v%d", version, CurrentSchemaVersion)
	}

	if version < SchemaVersion2 {
		if err := migrateToV2(db); err != nil {
			return fmt.Errorf("vault: migration to v2 failed: %w", err)
		}
	}
	return nil
}

// migrateToV2 adds the updated_at column, the name index and the sync_state
// table. It is idempotent.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns, err := getTableColumns(tx, "items")
	if err != nil {
		return fmt.Errorf("failed to get table columns: %w", err)
	}
	if !columns["updated_at"] {
		if _, err := tx.Exec("ALTER TABLE items ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("failed to add updated_at column: %w", err)
		}
	}

	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)"); err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			synced_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_state table: %w", err)
	}

	if err := setSchemaVersion(tx, SchemaVersion2); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// getTableColumns returns the set of column names of a table.
func getTableColumns(tx *sql.Tx, tableName string) (map[string]bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
