package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/runnerr0/historyview/internal/config"
	"github.com/runnerr0/historyview/internal/logging"
	"github.com/runnerr0/historyview/internal/storage"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	ctx     context.Context
	version string
	globals *GlobalFlags

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	// Overrides for tests; nil means the enricher defaults.
	httpClient    *http.Client
	enrichBaseURL func(domain string) string
}

// setup resolves configuration (file, .env, environment, then global flags)
// and builds the run logger.
func (a *app) setup() (*config.Config, *slog.Logger, error) {
	config.LoadDotEnv()

	cfg, err := config.Resolve(a.globals.Config)
	if err != nil {
		return nil, nil, err
	}
	if a.globals.DB != "" {
		cfg.Paths.DB = a.globals.DB
	}
	if a.globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	if a.globals.LogFormat != "" {
		cfg.Logging.Format = a.globals.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: a.stderr,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore opens the configured database. Commands that only read or
// enrich existing data pass mustExist so a typo in --db never creates an
// empty store.
func (a *app) openStore(cfg *config.Config, mustExist bool) (*storage.SQLiteStore, error) {
	return storage.Open(cfg.Paths.DB, storage.OpenOptions{MustExist: mustExist})
}

// openStoreReadOnly opens the configured database for dry runs. The file is
// neither migrated nor switched to WAL.
func (a *app) openStoreReadOnly(cfg *config.Config) (*storage.SQLiteStore, error) {
	return storage.Open(cfg.Paths.DB, storage.OpenOptions{ReadOnly: true})
}

func checkLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", limit)
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// confirm asks the operator to type word before a destructive action.
func (a *app) confirm(prompt, word string) error {
	fmt.Fprintln(a.stdout, prompt)
	fmt.Fprintln(a.stdout, "This action cannot be undone.")
	fmt.Fprintln(a.stdout)
	fmt.Fprintf(a.stdout, "Type %q to confirm: ", word)

	scanner := bufio.NewScanner(a.stdin)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != word {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	result.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		result.WriteString(",")
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// percent returns part/whole as a percentage, 0 when whole is 0.
func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
