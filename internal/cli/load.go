package cli

import (
	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/loader"
	"github.com/runnerr0/historyview/internal/normalize"
	"github.com/runnerr0/historyview/internal/storage"
)

// Execute implements the go-flags Commander interface for LoadCommand.
func (c *LoadCommand) Execute(args []string) error {
	if err := checkLimit(c.Limit); err != nil {
		return err
	}
	cfg, logger, err := c.app.setup()
	if err != nil {
		return err
	}

	kind, err := normalize.ParseKind(c.Source)
	if err != nil {
		return err
	}

	files := c.Args.Files
	if len(files) == 0 {
		if files, err = cfg.RawExports(string(kind)); err != nil {
			return err
		}
	}

	blPath := cfg.Paths.Blocklist
	if c.Blocklist != "" {
		blPath = c.Blocklist
	}
	blocklist, err := config.LoadBlocklist(blPath)
	if err != nil {
		return err
	}

	// A dry run never creates, migrates or writes the database.
	var store *storage.SQLiteStore
	if c.DryRun {
		store, err = c.app.openStoreReadOnly(cfg)
	} else {
		store, err = c.app.openStore(cfg, false)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	l := loader.New(store, blocklist, logger)
	var (
		total   loader.Stats
		loaded  int
		skipped int
		runErr  error
	)
	remains := c.Limit
	prefix := ""
	if c.DryRun {
		prefix = "[dry-run] "
	}

	for _, path := range files {
		if c.Limit > 0 && remains <= 0 {
			break
		}
		src, err := normalize.Open(kind, path, logger)
		if err != nil {
			runErr = err
			break
		}

		stats, err := l.Load(c.app.ctx, src.Records(), loader.Options{DryRun: c.DryRun, Limit: remains})
		total.Add(stats)
		loaded++
		skipped += src.Stats().Skipped
		c.app.printf("%s%s: %s, skipped %d\n", prefix, path, stats, src.Stats().Skipped)
		if err != nil {
			runErr = err
			break
		}
		if c.Limit > 0 {
			remains -= stats.Processed
		}
	}

	c.app.printf("%sLoaded %d file(s) from %s: %s, skipped %d\n", prefix, loaded, kind, total, skipped)
	return runErr
}
