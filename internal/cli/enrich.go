package cli

import (
	"strings"

	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/enrich"
	"github.com/runnerr0/historyview/internal/storage"
)

// Execute implements the go-flags Commander interface for EnrichCommand.
func (c *EnrichCommand) Execute(args []string) error {
	if err := checkLimit(c.Limit); err != nil {
		return err
	}
	cfg, logger, err := c.app.setup()
	if err != nil {
		return err
	}

	blPath := cfg.Paths.Blocklist
	if c.Blocklist != "" {
		blPath = c.Blocklist
	}
	blocklist, err := config.LoadBlocklist(blPath)
	if err != nil {
		return err
	}

	var store *storage.SQLiteStore
	if c.DryRun {
		store, err = c.app.openStoreReadOnly(cfg)
	} else {
		store, err = c.app.openStore(cfg, true)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	prefix := ""
	if c.DryRun {
		prefix = "[dry-run] "
	}

	if len(c.Reset) > 0 {
		domains := make([]string, 0, len(c.Reset))
		for _, d := range c.Reset {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				domains = append(domains, d)
			}
		}
		if c.DryRun {
			c.app.printf("%sWould reset %d domain(s): %s\n", prefix, len(domains), strings.Join(domains, ", "))
		} else {
			n, err := store.ResetChecked(c.app.ctx, domains...)
			if err != nil {
				return err
			}
			c.app.printf("Reset %d domain(s) to pending\n", n)
		}
	}

	delay := cfg.Enrich.Delay
	if c.Delay > 0 {
		delay = c.Delay
	}
	timeout := cfg.Enrich.Timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	e := enrich.New(store, blocklist, enrich.Options{
		Client:       c.app.httpClient,
		Timeout:      timeout,
		Delay:        delay,
		MaxRedirects: cfg.Enrich.MaxRedirects,
		MaxBodyBytes: cfg.Enrich.MaxBodyBytes,
		UserAgent:    cfg.Enrich.UserAgent,
		BaseURL:      c.app.enrichBaseURL,
		Logger:       logger,
	})

	stats, err := e.Run(c.app.ctx, enrich.RunOptions{
		DryRun:       c.DryRun,
		Limit:        c.Limit,
		RetryMissing: c.RetryMissing,
	})
	c.app.printf("%sEnrichment: %s\n", prefix, stats)
	return err
}
