package cli

// Execute implements the go-flags Commander interface for RepairCommand.
func (c *RepairCommand) Execute(args []string) error {
	cfg, _, err := c.app.setup()
	if err != nil {
		return err
	}
	store, err := c.app.openStore(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.RepairVisitCounts(c.app.ctx)
	if err != nil {
		return err
	}
	c.app.printf("Repaired num_visits for %d domain(s)\n", n)
	return nil
}
