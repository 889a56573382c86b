package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/historyview/internal/aggregate"
	"github.com/runnerr0/historyview/internal/storage"
)

const chromeExport = `[
  {"url": "https://news.example/a", "title": "Daily News", "visitTime": "2024-01-08T14:00:00Z"},
  {"url": "https://news.example/b", "visitTime": "2024-01-08T14:10:00Z"},
  {"url": "https://news.example/c", "visitTime": "2024-01-08T14:20:00Z"},
  {"url": "https://blog.example/", "visitTime": 1704722400000},
  {"url": "https://www.mychart.com/login", "visitTime": 1704722400000},
  {"url": "file:///home/me/notes.html", "visitTime": 1704722400000}
]`

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), "1.2.3", []string{"--version"}, &out, io.Discard, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "historyview 1.2.3", strings.TrimSpace(out.String()))
}

func TestHelpIsNotAnError(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), "test", []string{"--help"}, &out, io.Discard, strings.NewReader(""))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "generate")
}

func TestUnknownCommandFails(t *testing.T) {
	err := run(context.Background(), "test", []string{"frobnicate"}, io.Discard, io.Discard, strings.NewReader(""))
	assert.Error(t, err)
}

func TestSubcommandsRecognized(t *testing.T) {
	_, cmds := buildParser(&app{globals: &GlobalFlags{}})
	assert.NotNil(t, cmds.Init)
	assert.NotNil(t, cmds.Load)
	assert.NotNil(t, cmds.Enrich)
	assert.NotNil(t, cmds.Generate)
	assert.NotNil(t, cmds.Status)
	assert.NotNil(t, cmds.Backup)
	assert.NotNil(t, cmds.Repair)
}

func TestLoadRequiresSourceAndFiles(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run(t, "", "load", "export.json")
	assert.Error(t, err)

	_, err = e.run(t, "", "load", "--source", "safari", "export.json")
	assert.Error(t, err)

	_, err = e.run(t, "", "load", "--source", "chrome")
	assert.ErrorContains(t, err, "no chrome exports found")
}

func TestInitCreatesStoreAndBlocklist(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "init")
	assert.Contains(t, out, "Initialized database schema at "+e.dbPath)
	assert.Contains(t, out, "Wrote starter blocklist")
	assert.FileExists(t, e.dbPath)
	assert.FileExists(t, e.path("domain-blocklist.yml"))

	out = e.mustRun(t, "init")
	assert.Contains(t, out, "already exists")
}

func TestInitForceRequiresConfirmation(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)
	e.mustRun(t, "load", "--source", "chrome", src)

	_, err := e.run(t, "nope\n", "init", "--force")
	assert.ErrorContains(t, err, "aborted")

	out, err := e.run(t, "RESET\n", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")

	out = e.mustRun(t, "status", "--json")
	var status statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Zero(t, status.TotalVisits)
}

func TestLoadThenStatus(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)

	out := e.mustRun(t, "load", "--source", "chrome", src)
	assert.Contains(t, out, "processed 5, inserted 4, duplicates 0, new domains 2, blocked 1, errors 0")

	out = e.mustRun(t, "load", "--source", "chrome", src)
	assert.Contains(t, out, "inserted 0, duplicates 4")

	out = e.mustRun(t, "status")
	assert.Contains(t, out, "Visits:        4")
	assert.Contains(t, out, "Domains:       2")
	assert.Less(t, strings.Index(out, "news.example"), strings.Index(out, "blog.example"))

	out = e.mustRun(t, "status", "--json")
	var status statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, int64(4), status.TotalVisits)
	assert.Equal(t, int64(2), status.PendingDomains)
	assert.Equal(t, "2024-01-08T14:00:00Z", status.OldestVisit)
	require.Len(t, status.TopDomains, 2)
	assert.Equal(t, storage.DomainCount{Domain: "news.example", Count: 3}, status.TopDomains[0])
}

func TestLoadDryRunWithLimit(t *testing.T) {
	e := newTestEnv(t)

	// A dry run never creates the store.
	src := e.write(t, "chrome.json", chromeExport)
	_, err := e.run(t, "", "load", "--source", "chrome", "--dry-run", src)
	assert.ErrorIs(t, err, storage.ErrStoreMissing)
	assert.NoFileExists(t, e.dbPath)

	e.mustRun(t, "init")
	out := e.mustRun(t, "load", "--source", "chrome", "--dry-run", "--limit", "2", src, src)
	assert.Contains(t, out, "[dry-run] Loaded 1 file(s) from chrome: processed 2, inserted 2")

	out = e.mustRun(t, "status", "--json")
	var status statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Zero(t, status.TotalVisits)
	assert.Zero(t, status.TotalDomains)
}

func TestLoadDryRunCountsAcrossFiles(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)

	out := e.mustRun(t, "load", "--source", "chrome", "--dry-run", src, src)
	assert.Contains(t, out, "[dry-run] Loaded 2 file(s) from chrome: processed 10, inserted 4, duplicates 4, new domains 2, blocked 2")

	out = e.mustRun(t, "load", "--source", "chrome", src, src)
	assert.Contains(t, out, "Loaded 2 file(s) from chrome: processed 10, inserted 4, duplicates 4, new domains 2, blocked 2")
}

func TestLoadDryRunDoesNotTouchDatabaseFile(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)
	e.mustRun(t, "load", "--source", "chrome", src)
	before, err := os.ReadFile(e.dbPath)
	require.NoError(t, err)

	e.mustRun(t, "load", "--source", "chrome", "--dry-run", src)
	e.mustRun(t, "enrich", "--dry-run")

	after, err := os.ReadFile(e.dbPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadDefaultsToRawDataDirectory(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")

	_, err := e.run(t, "", "load", "--source", "chrome")
	assert.ErrorContains(t, err, "no chrome exports found")

	e.write(t, filepath.Join("raw-data", "chrome", "history.json"), chromeExport)
	out := e.mustRun(t, "load", "--source", "chrome")
	assert.Contains(t, out, "Loaded 1 file(s) from chrome: processed 5, inserted 4")
}

func TestNegativeLimitIsRejected(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)

	_, err := e.run(t, "", "load", "--source", "chrome", "--limit=-1", src)
	assert.ErrorContains(t, err, "--limit must not be negative")

	_, err = e.run(t, "", "enrich", "--limit=-3")
	assert.ErrorContains(t, err, "--limit must not be negative")

	out := e.mustRun(t, "status", "--json")
	var status statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Zero(t, status.TotalVisits)
}

func TestGenerateWritesBundle(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)
	e.mustRun(t, "load", "--source", "chrome", src)

	out := e.mustRun(t, "generate")
	assert.Contains(t, out, "level0.json (1 entries)")

	var level0 []aggregate.Level0Entry
	data, err := os.ReadFile(filepath.Join(e.outputDir, "level0.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &level0))
	assert.Equal(t, []aggregate.Level0Entry{{Day: 1, Hour: 14, Value: 4, Size: 100}}, level0)

	var doc aggregate.Level1Document
	data, err = os.ReadFile(filepath.Join(e.outputDir, "level1-1-14.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Categories, 1)
	assert.Equal(t, "#news", doc.Categories[0].Tag)
	assert.Equal(t, "Daily News", doc.Categories[0].Sites[0].Title)
	assert.Equal(t, []string{"#reading"}, doc.Categories[0].Sites[0].SecondaryTags)
	require.Len(t, doc.Uncategorized, 1)
	assert.Equal(t, "blog.example", doc.Uncategorized[0].Domain)
	assert.FileExists(t, filepath.Join(e.outputDir, "sprites", "level1-1-14.svg"))

	// New York puts Monday 14:00 UTC at 09:00.
	e.mustRun(t, "generate", "--timezone", "America/New_York", "--skip-sprites")
	assert.FileExists(t, filepath.Join(e.outputDir, "level1-1-09.json"))
	assert.NoFileExists(t, filepath.Join(e.outputDir, "level1-1-14.json"))
}

func TestGenerateRejectsUnknownMappedTag(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	e.write(t, "domain-category-map.yaml", "domains:\n  - domain: x.example\n    primary: nosuchtag\n")

	_, err := e.run(t, "", "generate")
	assert.ErrorContains(t, err, "#nosuchtag (x.example)")
}

func TestEnrichAgainstLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/news.example/":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, `<title>Ignored</title><link rel="icon" href="data:image/svg+xml,%3Csvg%2F%3E">`) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	e := newTestEnv(t)
	e.baseURL = func(domain string) string { return srv.URL + "/" + domain + "/" }
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)
	e.mustRun(t, "load", "--source", "chrome", src)

	out := e.mustRun(t, "enrich", "--dry-run")
	assert.Contains(t, out, "[dry-run] Enrichment: processed 2")

	out = e.mustRun(t, "enrich")
	assert.Contains(t, out, "processed 2, updated 1, missing 1, failed 1, blocked 0")

	out = e.mustRun(t, "enrich")
	assert.Contains(t, out, "processed 0")

	out = e.mustRun(t, "enrich", "--reset", "News.Example")
	assert.Contains(t, out, "Reset 1 domain(s) to pending")
	assert.Contains(t, out, "processed 1, updated 1")

	out = e.mustRun(t, "status")
	assert.Contains(t, out, "Favicons:      1 (50.0%)")
}

func TestRepairAndBackup(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "init")
	src := e.write(t, "chrome.json", chromeExport)
	e.mustRun(t, "load", "--source", "chrome", src)

	s, err := storage.Open(e.dbPath, storage.OpenOptions{MustExist: true})
	require.NoError(t, err)
	_, err = s.DB().Exec("UPDATE domains SET num_visits = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out := e.mustRun(t, "repair")
	assert.Contains(t, out, "Repaired num_visits for 2 domain(s)")

	out = e.mustRun(t, "backup")
	assert.Contains(t, out, "Backed up 3 file(s)")
	entries, err := os.ReadDir(e.path("backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCommandsNeedExistingStore(t *testing.T) {
	e := newTestEnv(t)
	for _, cmd := range []string{"status", "generate", "enrich", "repair", "backup"} {
		_, err := e.run(t, "", cmd)
		assert.ErrorIs(t, err, storage.ErrStoreMissing, cmd)
	}
	assert.NoFileExists(t, e.dbPath)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "123,456", formatNumber(123456))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
	assert.Equal(t, "1.0 GB", formatBytes(1<<30))
}
