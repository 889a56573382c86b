package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/runnerr0/historyview/internal/logging"
)

// Execute implements the go-flags Commander interface for BackupCommand.
func (c *BackupCommand) Execute(args []string) error {
	cfg, logger, err := c.app.setup()
	if err != nil {
		return err
	}
	logger = logger.With("component", logging.ComponentCLI)

	dest := cfg.Paths.Backups
	if c.Dest != "" {
		dest = c.Dest
	}
	suffix := time.Now().Format("20060102-150405")

	store, err := c.app.openStore(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	dbDest := filepath.Join(dest, filepath.Base(cfg.Paths.DB)+"."+suffix)
	if err := store.Backup(c.app.ctx, dbDest); err != nil {
		return err
	}
	c.app.printf("[ok] %s -> %s\n", cfg.Paths.DB, dbDest)

	copied := 1
	for _, src := range []string{cfg.Paths.Categories, cfg.Paths.DomainMap} {
		exists, err := fileExists(src)
		if err != nil {
			return err
		}
		if !exists {
			logger.Warn("backup source missing", "path", src)
			c.app.printf("[warn] missing source file: %s\n", src)
			continue
		}
		target := filepath.Join(dest, filepath.Base(src)+"."+suffix)
		if err := copyFile(src, target); err != nil {
			return err
		}
		copied++
		c.app.printf("[ok] %s -> %s\n", src, target)
	}

	c.app.printf("Backed up %d file(s) to %s\n", copied, dest)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
