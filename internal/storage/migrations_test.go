package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrate.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner_FreshDB(t *testing.T) {
	db := openTestDB(t)
	n, err := NewMigrationRunner(db).Run()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	assert.Equal(t, []string{"domains", "schema_migrations", "visits"}, tables)
}

func TestMigrationRunner_IndexesCreated(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrationRunner(db).Run()
	require.NoError(t, err)

	for _, idx := range []string{"idx_visits_domain_timestamp", "idx_visits_timestamp_domain"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
		assert.Equal(t, idx, name)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	_, err := runner.Run()
	require.NoError(t, err)
	n, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count, "should have exactly 1 migration recorded after double-run")

	v, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMigrationRunner_WALMode(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrationRunner(db).Run()
	require.NoError(t, err)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestMigrationRunner_ForeignKeyEnforcement(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrationRunner(db).Run()
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO visits (domain, timestamp) VALUES ('nowhere.test', '2024-01-01 00:00:00')")
	assert.Error(t, err, "a visit must reference an existing domain")
}

func TestMigrationRunner_DomainInvariants(t *testing.T) {
	db := openTestDB(t)
	_, err := NewMigrationRunner(db).Run()
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO domains (domain, checked) VALUES ('a.test', 1)")
	assert.Error(t, err, "checked requires check_timestamp")

	_, err = db.Exec("INSERT INTO domains (domain, favicon_data) VALUES ('b.test', x'00')")
	assert.Error(t, err, "favicon data requires a type")

	_, err = db.Exec("INSERT INTO domains (domain, num_visits) VALUES ('c.test', -1)")
	assert.Error(t, err)
}
