package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "data/history.db", cfg.Paths.DB)
	assert.Equal(t, "data/viz_data", cfg.Paths.Output)
	assert.Equal(t, "config/categories.yaml", cfg.Paths.Categories)
	assert.Equal(t, "config/domain-category-map.yaml", cfg.Paths.DomainMap)
	assert.Equal(t, "config/domain-blocklist.yml", cfg.Paths.Blocklist)
	assert.Equal(t, time.Second, cfg.Enrich.Delay)
	assert.Equal(t, 10*time.Second, cfg.Enrich.Timeout)
	assert.Equal(t, 5, cfg.Enrich.MaxRedirects)
	assert.Equal(t, "America/New_York", cfg.Generate.Timezone)
	assert.False(t, cfg.Generate.SkipSprites)
	assert.Equal(t, 64, cfg.Generate.IconSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestSpritesDirDefaultsUnderOutput(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("data/viz_data", "sprites"), cfg.SpritesDir())

	cfg.Paths.Sprites = "/tmp/sprites"
	assert.Equal(t, "/tmp/sprites", cfg.SpritesDir())
}

func TestRawExportsListsSourceDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.RawData = t.TempDir()

	_, err := cfg.RawExports("chrome")
	assert.ErrorContains(t, err, "no chrome exports found")

	dir := filepath.Join(cfg.Paths.RawData, "chrome")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range []string{"b.json", "a.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0644))
	}

	files, err := cfg.RawExports("chrome")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, files)
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "historyview.yaml")

	yamlContent := `
paths:
  db: "/var/lib/history.db"
enrich:
  delay: 250ms
  max_redirects: 3
generate:
  timezone: "Europe/Berlin"
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/history.db", cfg.Paths.DB)
	assert.Equal(t, 250*time.Millisecond, cfg.Enrich.Delay)
	assert.Equal(t, 3, cfg.Enrich.MaxRedirects)
	assert.Equal(t, "Europe/Berlin", cfg.Generate.Timezone)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, "data/viz_data", cfg.Paths.Output)
	assert.Equal(t, 10*time.Second, cfg.Enrich.Timeout)
	assert.Equal(t, 64, cfg.Generate.IconSize)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "historyview.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(":::not valid yaml{{{"), 0644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveExplicitMissingFileFails(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "historyview.yaml")

	cfg, created, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "America/New_York", cfg.Generate.Timezone)

	cfg2, created, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg.Enrich.Delay, cfg2.Enrich.Delay)
	assert.Equal(t, cfg.Paths.DB, cfg2.Paths.DB)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvDB, "/tmp/env.db")
	t.Setenv(EnvTimezone, "UTC")
	t.Setenv(EnvEnrichDelay, "2s")
	t.Setenv(EnvSkipSprites, "true")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, "/tmp/env.db", cfg.Paths.DB)
	assert.Equal(t, "UTC", cfg.Generate.Timezone)
	assert.Equal(t, 2*time.Second, cfg.Enrich.Delay)
	assert.True(t, cfg.Generate.SkipSprites)
}

func TestApplyEnvRejectsBadDuration(t *testing.T) {
	t.Setenv(EnvEnrichDelay, "soon")
	assert.Error(t, ApplyEnv(DefaultConfig()))
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generate.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}

func TestBlocklistSuffixMatch(t *testing.T) {
	b := NewBlocklist([]string{"foo.com", " Bar.ORG ", "*.wild.net", ""})

	assert.Equal(t, 3, b.Len())
	assert.True(t, b.Match("foo.com"))
	assert.True(t, b.Match("sub.foo.com"))
	assert.True(t, b.Match("deep.sub.foo.com"))
	assert.False(t, b.Match("notfoo.com"))
	assert.False(t, b.Match("foo.com.evil.net"))
	assert.True(t, b.Match("BAR.org"))
	assert.True(t, b.Match("x.wild.net"))
	assert.Equal(t, []string{"bar.org", "foo.com", "wild.net"}, b.Entries())
}

func TestNilBlocklistMatchesNothing(t *testing.T) {
	var b *Blocklist
	assert.False(t, b.Match("foo.com"))
	assert.Equal(t, 0, b.Len())
}

func TestLoadBlocklistFormats(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.yml")
	require.NoError(t, os.WriteFile(list, []byte("# comment\n- foo.com\n- bar.org # trailing\n"), 0644))
	b, err := LoadBlocklist(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar.org", "foo.com"}, b.Entries())

	mapping := filepath.Join(dir, "map.yml")
	require.NoError(t, os.WriteFile(mapping, []byte("domains:\n  - baz.net\n"), 0644))
	b, err = LoadBlocklist(mapping)
	require.NoError(t, err)
	assert.Equal(t, []string{"baz.net"}, b.Entries())

	b, err = LoadBlocklist(filepath.Join(dir, "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("just a string"), 0644))
	_, err = LoadBlocklist(bad)
	assert.Error(t, err)
}

func TestWriteStarterBlocklistDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "domain-blocklist.yml")

	written, err := WriteStarterBlocklist(path)
	require.NoError(t, err)
	assert.True(t, written)

	b, err := LoadBlocklist(path)
	require.NoError(t, err)
	assert.True(t, b.Match("www.paypal.com"))

	require.NoError(t, os.WriteFile(path, []byte("- only.com\n"), 0644))
	written, err = WriteStarterBlocklist(path)
	require.NoError(t, err)
	assert.False(t, written)

	b, err = LoadBlocklist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only.com"}, b.Entries())
}
