// Package aggregate projects the store into the static bundle read by the
// heatmap front end: level0.json, one level1-D-HH.json per non-empty
// (day, hour) bucket and, unless skipped, one favicon sprite sheet per
// bucket.
//
// Output bytes depend only on the store contents, the category resolver and
// Options. Every list is ordered by explicit keys, never by scan order.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/runnerr0/historyview/internal/category"
	"github.com/runnerr0/historyview/internal/logging"
	"github.com/runnerr0/historyview/internal/storage"
)

// DefaultTimezone is used when Options.Timezone is empty.
const DefaultTimezone = "America/New_York"

// DefaultIconSize is the sprite symbol edge in pixels.
const DefaultIconSize = 64

// Store is the read-only slice of the store the aggregator needs.
type Store interface {
	EachVisit(ctx context.Context, fn func(storage.Visit) error) error
	DomainMetadata(ctx context.Context) (map[string]storage.DomainMeta, error)
}

// Options controls one Generate call.
type Options struct {
	Timezone    string // IANA zone name
	OutputDir   string
	SpriteDir   string // default <OutputDir>/sprites
	SkipSprites bool
	IconSize    int
}

// Summary reports what Generate wrote.
type Summary struct {
	Visits         int
	Level0Entries  int
	Level1Files    int
	SpriteFiles    int
	Symbols        int
	StaleRemoved   int
	SpritesSkipped bool
}

func (s Summary) String() string {
	sprites := fmt.Sprintf("sprites: %d (%d symbols)", s.SpriteFiles, s.Symbols)
	if s.SpritesSkipped {
		sprites = "sprites: skipped"
	}
	return fmt.Sprintf("level0.json (%d entries), level1-*.json (%d files), %s, %d stale files removed",
		s.Level0Entries, s.Level1Files, sprites, s.StaleRemoved)
}

// Aggregator generates the front-end bundle.
type Aggregator struct {
	store    Store
	resolver *category.Resolver
	logger   *slog.Logger
}

// New creates an Aggregator. A nil resolver leaves every domain that has no
// main_category uncategorized.
func New(store Store, resolver *category.Resolver, logger *slog.Logger) *Aggregator {
	if resolver == nil {
		resolver, _ = category.NewResolver(nil, nil)
	}
	return &Aggregator{
		store:    store,
		resolver: resolver,
		logger:   logging.OrDiscard(logger).With("component", logging.ComponentAggregate),
	}
}

// Generate buckets every visit in the configured zone and writes the bundle.
// Files from earlier runs whose bucket is now empty are removed.
func (a *Aggregator) Generate(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{SpritesSkipped: opts.SkipSprites}

	if opts.OutputDir == "" {
		return summary, fmt.Errorf("output directory is required")
	}
	if opts.Timezone == "" {
		opts.Timezone = DefaultTimezone
	}
	if opts.IconSize <= 0 {
		opts.IconSize = DefaultIconSize
	}
	if opts.SpriteDir == "" {
		opts.SpriteDir = filepath.Join(opts.OutputDir, "sprites")
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return summary, fmt.Errorf("loading timezone %q: %w", opts.Timezone, err)
	}

	buckets, visits, err := collectBuckets(ctx, a.store, loc)
	if err != nil {
		return summary, err
	}
	summary.Visits = visits

	meta, err := a.store.DomainMetadata(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading domain metadata: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return summary, fmt.Errorf("creating output directory: %w", err)
	}
	if !opts.SkipSprites {
		if err := os.MkdirAll(opts.SpriteDir, 0755); err != nil {
			return summary, fmt.Errorf("creating sprite directory: %w", err)
		}
	}

	level0 := buildLevel0(buckets)
	if err := writeJSON(filepath.Join(opts.OutputDir, "level0.json"), level0); err != nil {
		return summary, err
	}
	summary.Level0Entries = len(level0)

	icons := newIconCache(opts.IconSize, a.logger)
	keepLevel1 := make(map[string]bool, len(buckets))
	keepSprites := make(map[string]bool, len(buckets))

	for _, b := range buckets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		name := b.fileStem()

		var spriteRef string
		if !opts.SkipSprites {
			symbols := buildSymbols(b, meta, icons)
			spriteName := name + ".svg"
			if err := writeFileAtomic(filepath.Join(opts.SpriteDir, spriteName), renderSprite(symbols, opts.IconSize)); err != nil {
				return summary, err
			}
			keepSprites[spriteName] = true
			summary.SpriteFiles++
			summary.Symbols += len(symbols)
			spriteRef = spriteRelPath(opts.OutputDir, opts.SpriteDir, spriteName)
		}

		doc := a.buildLevel1(b, meta, spriteRef)
		jsonName := name + ".json"
		if err := writeJSON(filepath.Join(opts.OutputDir, jsonName), doc); err != nil {
			return summary, err
		}
		keepLevel1[jsonName] = true
		summary.Level1Files++
		a.logger.Debug("bucket written", "day", b.Day, "hour", b.Hour, "value", b.Total,
			"categories", len(doc.Categories), "uncategorized", len(doc.Uncategorized))
	}

	removed, err := removeStale(opts.OutputDir, ".json", keepLevel1)
	if err != nil {
		return summary, err
	}
	summary.StaleRemoved += removed
	if !opts.SkipSprites {
		removed, err := removeStale(opts.SpriteDir, ".svg", keepSprites)
		if err != nil {
			return summary, err
		}
		summary.StaleRemoved += removed
	}

	a.logger.Info("bundle generated",
		"timezone", opts.Timezone,
		"visits", summary.Visits,
		"level0_entries", summary.Level0Entries,
		"level1_files", summary.Level1Files,
		"sprite_files", summary.SpriteFiles,
		"stale_removed", summary.StaleRemoved)
	return summary, nil
}

// spriteRelPath is the sprite path as referenced from a level1 document.
func spriteRelPath(outputDir, spriteDir, name string) string {
	rel, err := filepath.Rel(outputDir, filepath.Join(spriteDir, name))
	if err != nil {
		return "sprites/" + name
	}
	return filepath.ToSlash(rel)
}
