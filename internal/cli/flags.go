package cli

import "time"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config    string `long:"config" description:"Path to config file (default: historyview.yaml when present)"`
	DB        string `long:"db" description:"Path to the SQLite store (overrides paths.db)"`
	Verbose   bool   `long:"verbose" short:"v" description:"Enable debug logging"`
	LogFormat string `long:"log-format" description:"Log format: text or json"`
	Version   bool   `long:"version" description:"Show version and exit"`
}

// InitCommand creates the store and a starter blocklist.
type InitCommand struct {
	Force bool `long:"force" description:"Delete and recreate an existing database"`
	Yes   bool `long:"yes" description:"Skip the confirmation prompt for --force"`

	app *app
}

// LoadCommand ingests browser exports into the store.
type LoadCommand struct {
	Source    string `long:"source" description:"Export format" choice:"chrome" choice:"edge" choice:"takeout" required:"true"`
	DryRun    bool   `long:"dry-run" description:"Report what would change without writing"`
	Limit     int    `long:"limit" description:"Stop after N records (0 = all)"`
	Blocklist string `long:"blocklist" description:"Blocklist file (overrides paths.blocklist)"`

	Args struct {
		Files []string `positional-arg-name:"FILE" description:"Export files (default: <raw_data>/<source>/*.json)"`
	} `positional-args:"yes"`

	app *app
}

// EnrichCommand fetches titles and favicons for pending domains.
type EnrichCommand struct {
	DryRun       bool          `long:"dry-run" description:"List the domains that would be fetched"`
	Limit        int           `long:"limit" description:"Process at most N domains (0 = all)"`
	Delay        time.Duration `long:"delay" description:"Minimum gap between requests (overrides enrich.delay)"`
	Timeout      time.Duration `long:"timeout" description:"Per-request timeout (overrides enrich.timeout)"`
	RetryMissing bool          `long:"retry-missing" description:"Also retry checked domains that have no favicon"`
	Reset        []string      `long:"reset" description:"Mark DOMAIN pending again before the run (repeatable)" value-name:"DOMAIN"`
	Blocklist    string        `long:"blocklist" description:"Blocklist file (overrides paths.blocklist)"`

	app *app
}

// GenerateCommand writes the front-end bundle.
type GenerateCommand struct {
	Timezone    string `long:"timezone" description:"IANA timezone for bucketing (overrides generate.timezone)"`
	Output      string `long:"output" description:"Output directory (overrides paths.output)"`
	Sprites     string `long:"sprites" description:"Sprite directory (default: <output>/sprites)"`
	SkipSprites bool   `long:"skip-sprites" description:"Do not render sprite sheets"`
	Categories  string `long:"categories" description:"Taxonomy file (overrides paths.categories)"`
	DomainMap   string `long:"domain-map" description:"Domain category map (overrides paths.domain_map)"`

	app *app
}

// StatusCommand shows store statistics.
type StatusCommand struct {
	JSON bool `long:"json" description:"Output in JSON format"`

	app *app
}

// BackupCommand snapshots the store and category files.
type BackupCommand struct {
	Dest string `long:"dest" description:"Backup directory (overrides paths.backups)"`

	app *app
}

// RepairCommand recomputes num_visits from the visits table.
type RepairCommand struct {
	app *app
}
