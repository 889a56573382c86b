package config

import "time"

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DB:         "data/history.db",
			RawData:    "raw-data",
			Output:     "data/viz_data",
			Sprites:    "",
			Categories: "config/categories.yaml",
			DomainMap:  "config/domain-category-map.yaml",
			Blocklist:  "config/domain-blocklist.yml",
			Backups:    "backups",
		},
		Enrich: EnrichConfig{
			Delay:        time.Second,
			Timeout:      10 * time.Second,
			MaxRedirects: 5,
			MaxBodyBytes: 2 << 20,
			UserAgent:    "historyview-favicons/1.0 (+https://github.com/runnerr0/historyview)",
		},
		Generate: GenerateConfig{
			Timezone:    "America/New_York",
			SkipSprites: false,
			IconSize:    64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
