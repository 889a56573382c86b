package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration.
const (
	EnvDB          = "HISTORYVIEW_DB"
	EnvOutput      = "HISTORYVIEW_OUTPUT"
	EnvBlocklist   = "HISTORYVIEW_BLOCKLIST"
	EnvTimezone    = "HISTORYVIEW_TIMEZONE"
	EnvLogLevel    = "HISTORYVIEW_LOG_LEVEL"
	EnvEnrichDelay = "HISTORYVIEW_ENRICH_DELAY"
	EnvSkipSprites = "HISTORYVIEW_SKIP_SPRITES"
)

// LoadDotEnv loads .env files with priority: .env.local > .env
// godotenv.Load does NOT overwrite already-set env vars,
// so OS env vars always win, .env.local wins over .env.
// Returns list of files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// ApplyEnv overlays HISTORYVIEW_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDB); v != "" {
		cfg.Paths.DB = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		cfg.Paths.Output = v
	}
	if v := os.Getenv(EnvBlocklist); v != "" {
		cfg.Paths.Blocklist = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		cfg.Generate.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvEnrichDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEnrichDelay, err)
		}
		cfg.Enrich.Delay = d
	}
	if v := os.Getenv(EnvSkipSprites); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSkipSprites, err)
		}
		cfg.Generate.SkipSprites = b
	}
	return nil
}
