package cli

import (
	"github.com/runnerr0/historyview/internal/aggregate"
	"github.com/runnerr0/historyview/internal/category"
)

// Execute implements the go-flags Commander interface for GenerateCommand.
func (c *GenerateCommand) Execute(args []string) error {
	cfg, logger, err := c.app.setup()
	if err != nil {
		return err
	}

	if c.Output != "" {
		cfg.Paths.Output = c.Output
	}
	if c.Sprites != "" {
		cfg.Paths.Sprites = c.Sprites
	}
	if c.Categories != "" {
		cfg.Paths.Categories = c.Categories
	}
	if c.DomainMap != "" {
		cfg.Paths.DomainMap = c.DomainMap
	}
	timezone := cfg.Generate.Timezone
	if c.Timezone != "" {
		timezone = c.Timezone
	}

	taxonomy, err := category.LoadTaxonomy(cfg.Paths.Categories)
	if err != nil {
		return err
	}
	mapping, err := category.LoadMapping(cfg.Paths.DomainMap)
	if err != nil {
		return err
	}
	resolver, err := category.NewResolver(taxonomy, mapping)
	if err != nil {
		return err
	}

	store, err := c.app.openStore(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := aggregate.New(store, resolver, logger).Generate(c.app.ctx, aggregate.Options{
		Timezone:    timezone,
		OutputDir:   cfg.Paths.Output,
		SpriteDir:   cfg.SpritesDir(),
		SkipSprites: c.SkipSprites || cfg.Generate.SkipSprites,
		IconSize:    cfg.Generate.IconSize,
	})
	if err != nil {
		return err
	}
	c.app.printf("Generated %s in %s (%d visits, timezone %s)\n", summary, cfg.Paths.Output, summary.Visits, timezone)
	return nil
}
