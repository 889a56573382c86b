package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/runnerr0/historyview/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string                `json:"version"`
	DatabasePath      string                `json:"database_path"`
	DatabaseSizeBytes int64                 `json:"database_size_bytes"`
	TotalVisits       int64                 `json:"total_visits"`
	TotalDomains      int64                 `json:"total_domains"`
	CheckedDomains    int64                 `json:"checked_domains"`
	PendingDomains    int64                 `json:"pending_domains"`
	WithFavicon       int64                 `json:"with_favicon"`
	OldestVisit       string                `json:"oldest_visit,omitempty"`
	NewestVisit       string                `json:"newest_visit,omitempty"`
	TopDomains        []storage.DomainCount `json:"top_domains"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, _, err := c.app.setup()
	if err != nil {
		return err
	}
	store, err := c.app.openStore(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(c.app.ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if c.JSON {
		return c.printStatusJSON(stats, cfg.Paths.DB)
	}
	c.printStatusHuman(stats, cfg.Paths.DB)
	return nil
}

func (c *StatusCommand) printStatusHuman(stats *storage.Stats, dbPath string) {
	p := c.app.printf
	p("historyview status\n")
	p("==================\n")
	p("Version:       %s\n", c.app.version)
	p("Database:      %s (%s)\n", dbPath, formatBytes(stats.DatabaseSizeBytes))
	p("Visits:        %s\n", formatNumber(stats.TotalVisits))
	p("Domains:       %s\n", formatNumber(stats.TotalDomains))
	p("Checked:       %s (%.1f%%)\n", formatNumber(stats.CheckedDomains), percent(stats.CheckedDomains, stats.TotalDomains))
	p("Pending:       %s\n", formatNumber(stats.PendingDomains))
	p("Favicons:      %s (%.1f%%)\n", formatNumber(stats.WithFavicon), percent(stats.WithFavicon, stats.TotalDomains))

	if stats.TotalVisits > 0 {
		p("Oldest:        %s\n", stats.OldestVisit.Format("2006-01-02"))
		p("Newest:        %s\n", stats.NewestVisit.Format("2006-01-02"))
	}

	if len(stats.TopDomains) > 0 {
		p("\nTop Domains:\n")
		for _, d := range stats.TopDomains {
			p("  %-30s %s\n", d.Domain, formatNumber(d.Count))
		}
	}
}

func (c *StatusCommand) printStatusJSON(stats *storage.Stats, dbPath string) error {
	out := statusJSON{
		Version:           c.app.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		TotalVisits:       stats.TotalVisits,
		TotalDomains:      stats.TotalDomains,
		CheckedDomains:    stats.CheckedDomains,
		PendingDomains:    stats.PendingDomains,
		WithFavicon:       stats.WithFavicon,
		TopDomains:        stats.TopDomains,
	}
	if out.TopDomains == nil {
		out.TopDomains = []storage.DomainCount{}
	}
	if stats.TotalVisits > 0 {
		out.OldestVisit = stats.OldestVisit.UTC().Format(time.RFC3339)
		out.NewestVisit = stats.NewestVisit.UTC().Format(time.RFC3339)
	}

	enc := json.NewEncoder(c.app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
