package store

import (
	"database/sql"
	"fmt"

	"hotswap/internal/logging"
)

// CurrentSchemaVersion is the schema version Open migrates to.
const CurrentSchemaVersion = 2

type columnMigration struct {
	Version int
	Table   string
	Column  string
	Def     string
}

// Columns added after the initial schema. Older databases gain them on open.
var pendingMigrations = []columnMigration{
	{2, "cycles", "trigger_kind", "TEXT NOT NULL DEFAULT 'manual'"},
}

// RunMigrations brings db up to CurrentSchemaVersion.
func RunMigrations(db *sql.DB) error {
	log := logging.Get(logging.CategoryStore)

	version := GetSchemaVersion(db)
	if version >= CurrentSchemaVersion {
		return nil
	}

	for _, m := range pendingMigrations {
		if m.Version <= version || columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		log.Info("migration applied: added %s.%s", m.Table, m.Column)
	}
	return SetSchemaVersion(db, CurrentSchemaVersion)
}

// GetSchemaVersion returns the recorded schema version, 1 when only the
// initial schema is present.
func GetSchemaVersion(db *sql.DB) int {
	var version int
	err := db.QueryRow("SELECT version FROM schema_versions ORDER BY id DESC LIMIT 1").Scan(&version)
	if err != nil {
		return 1
	}
	return version
}

// SetSchemaVersion records a new schema version.
func SetSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
		version, fmt.Sprintf("Migrated to schema version %d", version),
	)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
