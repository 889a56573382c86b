package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/logging"
)

// Execute implements the go-flags Commander interface for InitCommand.
func (c *InitCommand) Execute(args []string) error {
	configPath := c.app.globals.Config
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}
	if _, created, err := config.LoadOrCreateAt(configPath); err != nil {
		return err
	} else if created {
		c.app.printf("Wrote default config to %s\n", configPath)
	}

	cfg, logger, err := c.app.setup()
	if err != nil {
		return err
	}
	logger = logger.With("component", logging.ComponentCLI)
	dbPath := cfg.Paths.DB

	exists, err := fileExists(dbPath)
	if err != nil {
		return err
	}
	if exists {
		if !c.Force {
			c.app.printf("Database already exists at %s. Use --force to recreate.\n", dbPath)
			return nil
		}
		if !c.Yes {
			prompt := fmt.Sprintf("WARNING: this permanently deletes every visit and domain in %s.", dbPath)
			if err := c.app.confirm(prompt, "RESET"); err != nil {
				return err
			}
		}
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", p, err)
			}
		}
		logger.Info("database removed", "path", dbPath)
	}

	store, err := c.app.openStore(cfg, false)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	c.app.printf("Initialized database schema at %s\n", dbPath)

	wrote, err := config.WriteStarterBlocklist(cfg.Paths.Blocklist)
	if err != nil {
		return err
	}
	if wrote {
		c.app.printf("Wrote starter blocklist to %s (%d entries)\n", cfg.Paths.Blocklist, len(config.StarterBlocklist()))
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
