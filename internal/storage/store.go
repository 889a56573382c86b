package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrStoreMissing is returned by Open when the database file is required
	// but does not exist.
	ErrStoreMissing = errors.New("store file does not exist")

	// ErrSchemaMissing is returned by a read-only Open when the database
	// lacks the visits or domains table.
	ErrSchemaMissing = errors.New("store schema missing")

	// ErrDomainNotFound is returned when a domain row is absent.
	ErrDomainNotFound = errors.New("domain not found")
)

// Store defines the persistence operations of the pipeline.
type Store interface {
	UpsertVisit(ctx context.Context, in VisitInput) (UpsertResult, error)
	GetOrCreateDomain(ctx context.Context, domain string) (bool, error)
	IncrementVisitCount(ctx context.Context, domain string, delta int64) error
	GetDomain(ctx context.Context, domain string) (*Domain, error)
	HasVisit(ctx context.Context, domain string, ts time.Time) (bool, error)
	MarkChecked(ctx context.Context, domain string, at time.Time) error
	SetFaviconData(ctx context.Context, domain, mime string, data []byte) error
	ApplyEnrichment(ctx context.Context, res EnrichmentResult) error
	PendingEnrichment(ctx context.Context, q PendingQuery) ([]string, error)
	ResetChecked(ctx context.Context, domains ...string) (int64, error)
	EachVisit(ctx context.Context, fn func(Visit) error) error
	DomainMetadata(ctx context.Context) (map[string]DomainMeta, error)
	RepairVisitCounts(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Backup(ctx context.Context, dest string) error
	Close() error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	ownsDB bool

	// Prepared statements
	hasVisit    *sql.Stmt
	insertVisit *sql.Stmt
	getDomain   *sql.Stmt
	markChecked *sql.Stmt
}

// OpenOptions controls Open.
type OpenOptions struct {
	// MustExist fails with ErrStoreMissing instead of creating a new file.
	MustExist bool
	// ReadOnly opens an existing file with mode=ro. No pragmas or
	// migrations run, so the file is left as it was; writes fail.
	ReadOnly bool
}

// Open opens the database at path, runs pending migrations (or only checks
// the schema when opts.ReadOnly) and returns a store that owns the
// connection.
func Open(path string, opts OpenOptions) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat database: %w", err)
		}
		if opts.MustExist || opts.ReadOnly {
			return nil, fmt.Errorf("%w: %s (run \"historyview init\" or \"historyview load\" first)", ErrStoreMissing, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if opts.ReadOnly {
		dsn = "file:" + path + "?mode=ro&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One handle per run. Transactions below never touch the pool while they
	// hold the connection.
	db.SetMaxOpenConns(1)

	if opts.ReadOnly {
		err = checkSchema(db)
	} else if _, err = NewMigrationRunner(db).Run(); err != nil {
		err = fmt.Errorf("run migrations: %w", err)
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}
	s.path = path
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore creates a SQLiteStore from an already-opened and migrated
// database. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.hasVisit, err = s.db.Prepare(`
		SELECT EXISTS (SELECT 1 FROM visits WHERE domain = ? AND timestamp = ?)
	`)
	if err != nil {
		return err
	}

	s.insertVisit, err = s.db.Prepare(`INSERT INTO visits (domain, timestamp) VALUES (?, ?)`)
	if err != nil {
		return err
	}

	s.getDomain, err = s.db.Prepare(`
		SELECT domain, title, num_visits, checked, check_timestamp,
		       favicon_type, favicon_data, main_category
		FROM domains WHERE domain = ?
	`)
	if err != nil {
		return err
	}

	s.markChecked, err = s.db.Prepare(`
		UPDATE domains SET checked = 1, check_timestamp = ? WHERE domain = ?
	`)
	if err != nil {
		return err
	}

	return nil
}

// DB exposes the underlying handle for tests and maintenance commands.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the database file path, or "" when the store was built from
// an existing handle.
func (s *SQLiteStore) Path() string { return s.path }

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// parseTime reads a stored timestamp. Older rows may carry RFC 3339 text.
func parseTime(v string) (time.Time, error) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", v)
}

func getOrCreateDomain(ctx context.Context, q querier, domain string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO domains (domain, num_visits, checked) VALUES (?, 0, 0)
		 ON CONFLICT(domain) DO NOTHING`, domain)
	if err != nil {
		return false, fmt.Errorf("insert domain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func incrementVisitCount(ctx context.Context, q querier, domain string, delta int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE domains SET num_visits = num_visits + ? WHERE domain = ?", delta, domain)
	if err != nil {
		return fmt.Errorf("increment num_visits: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	return nil
}

func backfillTitle(ctx context.Context, q querier, domain, title string) error {
	if title == "" {
		return nil
	}
	_, err := q.ExecContext(ctx,
		"UPDATE domains SET title = ? WHERE domain = ? AND title IS NULL", title, domain)
	if err != nil {
		return fmt.Errorf("backfill title: %w", err)
	}
	return nil
}

// UpsertVisit records one visit and its domain in a single transaction.
// The domain row is created if absent; a visit already stored with the same
// (domain, timestamp) is left alone and nothing else changes. Otherwise the
// visit is appended, num_visits incremented and a null title backfilled.
func (s *SQLiteStore) UpsertVisit(ctx context.Context, in VisitInput) (UpsertResult, error) {
	var out UpsertResult
	if in.Domain == "" {
		return out, errors.New("upsert visit: empty domain")
	}
	ts := formatTime(in.Timestamp)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out.NewDomain, err = getOrCreateDomain(ctx, tx, in.Domain)
	if err != nil {
		return out, err
	}

	var exists bool
	if err := tx.StmtContext(ctx, s.hasVisit).QueryRowContext(ctx, in.Domain, ts).Scan(&exists); err != nil {
		return out, fmt.Errorf("check visit: %w", err)
	}
	if exists {
		return out, tx.Commit()
	}

	res, err := tx.StmtContext(ctx, s.insertVisit).ExecContext(ctx, in.Domain, ts)
	if err != nil {
		return out, fmt.Errorf("insert visit: %w", err)
	}
	if out.VisitID, err = res.LastInsertId(); err != nil {
		return out, fmt.Errorf("visit id: %w", err)
	}
	if err := incrementVisitCount(ctx, tx, in.Domain, 1); err != nil {
		return out, err
	}
	if err := backfillTitle(ctx, tx, in.Domain, in.Title); err != nil {
		return out, err
	}

	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("commit visit: %w", err)
	}
	out.Inserted = true
	return out, nil
}

// GetOrCreateDomain ensures a domain row exists and reports whether it was
// created. New rows start with num_visits = 0 and checked = false.
func (s *SQLiteStore) GetOrCreateDomain(ctx context.Context, domain string) (bool, error) {
	return getOrCreateDomain(ctx, s.db, domain)
}

// IncrementVisitCount adds delta to a domain's num_visits.
func (s *SQLiteStore) IncrementVisitCount(ctx context.Context, domain string, delta int64) error {
	return incrementVisitCount(ctx, s.db, domain, delta)
}

// GetDomain retrieves a single domain row.
func (s *SQLiteStore) GetDomain(ctx context.Context, domain string) (*Domain, error) {
	var (
		d            Domain
		title        sql.NullString
		checkTS      sql.NullString
		faviconType  sql.NullString
		mainCategory sql.NullString
	)
	err := s.getDomain.QueryRowContext(ctx, domain).Scan(
		&d.Domain, &title, &d.NumVisits, &d.Checked, &checkTS,
		&faviconType, &d.FaviconData, &mainCategory,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}

	if title.Valid {
		d.Title = &title.String
	}
	if checkTS.Valid {
		t, err := parseTime(checkTS.String)
		if err != nil {
			return nil, err
		}
		d.CheckTimestamp = &t
	}
	if faviconType.Valid {
		d.FaviconType = &faviconType.String
	}
	if mainCategory.Valid {
		d.MainCategory = &mainCategory.String
	}
	return &d, nil
}

// HasVisit reports whether a visit with this (domain, timestamp) is stored.
func (s *SQLiteStore) HasVisit(ctx context.Context, domain string, ts time.Time) (bool, error) {
	var exists bool
	if err := s.hasVisit.QueryRowContext(ctx, domain, formatTime(ts)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check visit: %w", err)
	}
	return exists, nil
}

// MarkChecked sets checked and check_timestamp without touching favicon or
// title columns.
func (s *SQLiteStore) MarkChecked(ctx context.Context, domain string, at time.Time) error {
	res, err := s.markChecked.ExecContext(ctx, formatTime(at), domain)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	return nil
}

// SetFaviconData stores an icon and its MIME type together.
func (s *SQLiteStore) SetFaviconData(ctx context.Context, domain, mime string, data []byte) error {
	if len(data) == 0 || mime == "" {
		return errors.New("set favicon: both MIME type and data are required")
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE domains SET favicon_type = ?, favicon_data = ? WHERE domain = ?", mime, data, domain)
	if err != nil {
		return fmt.Errorf("set favicon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, domain)
	}
	return nil
}

// ApplyEnrichment commits one enrichment attempt: title backfill, favicon
// (when present) and the checked transition, all in one transaction.
func (s *SQLiteStore) ApplyEnrichment(ctx context.Context, r EnrichmentResult) error {
	if len(r.FaviconData) > 0 && r.FaviconType == "" {
		return fmt.Errorf("apply enrichment %s: favicon data without MIME type", r.Domain)
	}
	at := r.CheckedAt
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.StmtContext(ctx, s.markChecked).ExecContext(ctx, formatTime(at), r.Domain)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, r.Domain)
	}

	if err := backfillTitle(ctx, tx, r.Domain, r.Title); err != nil {
		return err
	}

	if len(r.FaviconData) > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE domains SET favicon_type = ?, favicon_data = ? WHERE domain = ?",
			r.FaviconType, r.FaviconData, r.Domain,
		); err != nil {
			return fmt.Errorf("set favicon: %w", err)
		}
	}

	return tx.Commit()
}

// PendingEnrichment lists domains awaiting enrichment, most visited first.
// The result is fully read before returning so callers may write while
// walking it.
func (s *SQLiteStore) PendingEnrichment(ctx context.Context, q PendingQuery) ([]string, error) {
	where := "checked = 0"
	if q.IncludeMissingFavicons {
		where = "(checked = 0 OR favicon_data IS NULL)"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT domain FROM domains WHERE "+where+" ORDER BY num_visits DESC, domain LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query pending domains: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan pending domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResetChecked clears the checked state of the given domains so the next
// enrichment run selects them again. It returns the number of rows changed.
func (s *SQLiteStore) ResetChecked(ctx context.Context, domains ...string) (int64, error) {
	if len(domains) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(domains)), ",")
	args := make([]any, len(domains))
	for i, d := range domains {
		args[i] = d
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE domains SET checked = 0, check_timestamp = NULL WHERE domain IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("reset checked: %w", err)
	}
	return res.RowsAffected()
}

// EachVisit calls fn for every visit ordered by timestamp, then domain. fn
// must not use the store: the scan holds the only connection.
func (s *SQLiteStore) EachVisit(ctx context.Context, fn func(Visit) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, domain, timestamp FROM visits ORDER BY timestamp, domain, id")
	if err != nil {
		return fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v  Visit
			ts string
		)
		if err := rows.Scan(&v.ID, &v.Domain, &ts); err != nil {
			return fmt.Errorf("scan visit: %w", err)
		}
		if v.Timestamp, err = parseTime(ts); err != nil {
			return fmt.Errorf("visit %d: %w", v.ID, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DomainMetadata returns title, main_category and favicon for every domain.
func (s *SQLiteStore) DomainMetadata(ctx context.Context) (map[string]DomainMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, COALESCE(title, ''), COALESCE(main_category, ''),
		       COALESCE(favicon_type, ''), favicon_data
		FROM domains
	`)
	if err != nil {
		return nil, fmt.Errorf("query domain metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DomainMeta)
	for rows.Next() {
		var (
			domain string
			m      DomainMeta
		)
		if err := rows.Scan(&domain, &m.Title, &m.MainCategory, &m.FaviconType, &m.FaviconData); err != nil {
			return nil, fmt.Errorf("scan domain metadata: %w", err)
		}
		out[domain] = m
	}
	return out, rows.Err()
}

// RepairVisitCounts recomputes num_visits from the visits table and returns
// the number of domains whose count was wrong.
func (s *SQLiteStore) RepairVisitCounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains
		SET num_visits = (SELECT COUNT(*) FROM visits v WHERE v.domain = domains.domain)
		WHERE num_visits <> (SELECT COUNT(*) FROM visits v WHERE v.domain = domains.domain)
	`)
	if err != nil {
		return 0, fmt.Errorf("repair visit counts: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns aggregate statistics about the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(checked), 0),
		       COALESCE(SUM(CASE WHEN checked = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN favicon_data IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM domains
	`).Scan(&stats.TotalDomains, &stats.CheckedDomains, &stats.PendingDomains, &stats.WithFavicon)
	if err != nil {
		return nil, fmt.Errorf("count domains: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM visits").Scan(&stats.TotalVisits); err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}

	if stats.TotalVisits > 0 {
		var oldest, newest string
		err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM visits").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("visit time range: %w", err)
		}
		stats.OldestVisit, _ = parseTime(oldest)
		stats.NewestVisit, _ = parseTime(newest)
	}

	if s.path != "" {
		if fi, err := os.Stat(s.path); err == nil {
			stats.DatabaseSizeBytes = fi.Size()
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, num_visits FROM domains ORDER BY num_visits DESC, domain LIMIT 10")
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, err
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}
	return stats, rows.Err()
}

// Backup writes a consistent copy of the database to dest using
// VACUUM INTO. dest must not exist.
func (s *SQLiteStore) Backup(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup %s: file already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// Close releases all prepared statements, and the database handle when the
// store was created by Open.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.hasVisit, s.insertVisit, s.getDomain, s.markChecked}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
