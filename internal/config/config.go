package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the CLI looks for a config file when --config
// is not given. A missing file there is not an error.
const DefaultConfigPath = "historyview.yaml"

// Config holds all historyview configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Generate GenerateConfig `yaml:"generate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PathsConfig struct {
	DB         string `yaml:"db"`
	RawData    string `yaml:"raw_data"`
	Output     string `yaml:"output"`
	Sprites    string `yaml:"sprites"`
	Categories string `yaml:"categories"`
	DomainMap  string `yaml:"domain_map"`
	Blocklist  string `yaml:"blocklist"`
	Backups    string `yaml:"backups"`
}

type EnrichConfig struct {
	Delay        time.Duration `yaml:"delay"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

type GenerateConfig struct {
	Timezone    string `yaml:"timezone"`
	SkipSprites bool   `yaml:"skip_sprites"`
	IconSize    int    `yaml:"icon_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SpritesDir returns the sprite output directory, defaulting to
// <output>/sprites.
func (c *Config) SpritesDir() string {
	if c.Paths.Sprites != "" {
		return c.Paths.Sprites
	}
	return filepath.Join(c.Paths.Output, "sprites")
}

// RawExports lists the *.json files under <raw_data>/<source>, sorted by
// name. It returns an error when there are none.
func (c *Config) RawExports(source string) ([]string, error) {
	dir := filepath.Join(c.Paths.RawData, source)
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s exports found in %s", source, dir)
	}
	sort.Strings(files)
	return files, nil
}

// Validate reports configuration values that would make a run fail later.
func (c *Config) Validate() error {
	if c.Paths.DB == "" {
		return fmt.Errorf("paths.db must not be empty")
	}
	if c.Enrich.Delay < 0 {
		return fmt.Errorf("enrich.delay must not be negative")
	}
	if c.Enrich.Timeout <= 0 {
		return fmt.Errorf("enrich.timeout must be positive")
	}
	if c.Enrich.MaxRedirects < 0 {
		return fmt.Errorf("enrich.max_redirects must not be negative")
	}
	if c.Generate.IconSize <= 0 {
		return fmt.Errorf("generate.icon_size must be positive")
	}
	if _, err := time.LoadLocation(c.Generate.Timezone); err != nil {
		return fmt.Errorf("generate.timezone: %w", err)
	}
	return nil
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Resolve loads the config at path. An empty path falls back to
// DefaultConfigPath, and only in that case is a missing file tolerated.
// Environment overrides are applied last.
func Resolve(path string) (*Config, error) {
	var cfg *Config
	switch {
	case path != "":
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			loaded, err := Load(DefaultConfigPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		} else {
			cfg = DefaultConfig()
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, false, fmt.Errorf("creating config directory: %w", err)
			}
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, false, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, false, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, true, nil
	}

	cfg, err := Load(path)
	return cfg, false, err
}
