package storage

import "database/sql"

// migrateV001 creates the visits log, the domains table and the two
// composite indexes used by aggregation. Every statement uses IF NOT EXISTS.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS domains (
			domain          TEXT PRIMARY KEY,
			title           TEXT,
			num_visits      INTEGER NOT NULL DEFAULT 0 CHECK (num_visits >= 0),
			checked         BOOLEAN NOT NULL DEFAULT 0,
			check_timestamp TEXT,
			favicon_type    TEXT,
			favicon_data    BLOB,
			main_category   TEXT,
			CHECK (checked = 0 OR check_timestamp IS NOT NULL),
			CHECK (favicon_data IS NULL OR favicon_type IS NOT NULL)
		)`,

		`CREATE TABLE IF NOT EXISTS visits (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			domain    TEXT NOT NULL REFERENCES domains(domain) ON DELETE CASCADE,
			timestamp TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_visits_domain_timestamp ON visits(domain, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_timestamp_domain ON visits(timestamp, domain)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
