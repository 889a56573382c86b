package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a scratch project directory with a config file whose paths all
// point inside it.
type testEnv struct {
	dir        string
	configPath string
	dbPath     string
	outputDir  string
	baseURL    func(domain string) string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	e := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "historyview.yaml"),
		dbPath:     filepath.Join(dir, "data", "history.db"),
		outputDir:  filepath.Join(dir, "viz"),
	}

	cfg := fmt.Sprintf(`paths:
  db: %s
  raw_data: %s
  output: %s
  categories: %s
  domain_map: %s
  blocklist: %s
  backups: %s
enrich:
  delay: 0s
  timeout: 2s
generate:
  timezone: UTC
logging:
  level: warn
`, e.dbPath, e.path("raw-data"), e.outputDir, e.path("categories.yaml"), e.path("domain-category-map.yaml"),
		e.path("domain-blocklist.yml"), e.path("backups"))
	e.write(t, "historyview.yaml", cfg)
	e.write(t, "categories.yaml", `categories:
  - tag: "#news"
    label: News
    type: primary
  - tag: "#reading"
    label: Reading
`)
	e.write(t, "domain-category-map.yaml", `domains:
  - domain: news.example
    primary: news
    secondary: [reading]
`)
	return e
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	p := e.path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

// run executes one CLI invocation against the env's config and returns
// what it printed to stdout.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		ctx:           context.Background(),
		version:       "test",
		globals:       &GlobalFlags{},
		stdout:        &out,
		stderr:        io.Discard,
		stdin:         strings.NewReader(stdin),
		enrichBaseURL: e.baseURL,
	}
	parser, _ := buildParser(a)
	_, err := parser.ParseArgs(append([]string{"--config", e.configPath}, args...))
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, out)
	return out
}
