package db

import (
	"database/sql"
	"fmt"
)

// migration is a single ordered schema change. Each step checks its own
// applicability so re-running the full list is always safe.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "create certificates table", apply: createCertificatesTable},
	{version: 2, name: "add validity_days column", apply: addValidityDaysColumn},
}

// RunMigrations executes all pending database migrations in order.
func RunMigrations(db *DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.BeginTx()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): record version: %w", m.version, m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", m.version, m.name, err)
		}
	}

	return nil
}

func createCertificatesTable(tx *sql.Tx) error {
	if _, err := tx.Exec(certificatesTable); err != nil {
		return err
	}
	_, err := tx.Exec(certificatesIndexes)
	return err
}

// addValidityDaysColumn adds the validity_days column introduced after the
// initial deployment. Existing rows keep a NULL day count.
func addValidityDaysColumn(tx *sql.Tx) error {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('certificates')
		WHERE name = 'validity_days'
	`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = tx.Exec(`ALTER TABLE certificates ADD COLUMN validity_days INTEGER`)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    cn              TEXT NOT NULL,
    sans            TEXT NOT NULL,
    serial_number   TEXT,
    profile         TEXT,
    issued_at       TEXT NOT NULL,
    expires_at      TEXT NOT NULL,
    status          TEXT NOT NULL,
    certificate_pem TEXT NOT NULL,
    private_key_pem TEXT NOT NULL,
    created_at      TEXT NOT NULL
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_cn ON certificates(cn);
CREATE INDEX idx_certs_expires_at ON certificates(expires_at)`
)
