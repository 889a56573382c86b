package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Init     *InitCommand
	Load     *LoadCommand
	Enrich   *EnrichCommand
	Generate *GenerateCommand
	Status   *StatusCommand
	Backup   *BackupCommand
	Repair   *RepairCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(a *app) (*goflags.Parser, *commands) {
	parser := goflags.NewParser(a.globals, goflags.HelpFlag|goflags.PassDoubleDash)
	parser.Name = "historyview"
	parser.LongDescription = "Batch pipeline that turns browser history exports into heatmap JSON and favicon sprites."

	cmds := &commands{
		Init:     &InitCommand{app: a},
		Load:     &LoadCommand{app: a},
		Enrich:   &EnrichCommand{app: a},
		Generate: &GenerateCommand{app: a},
		Status:   &StatusCommand{app: a},
		Backup:   &BackupCommand{app: a},
		Repair:   &RepairCommand{app: a},
	}

	parser.AddCommand("init", "Create the database", "Create the database schema and a starter blocklist.", cmds.Init)
	parser.AddCommand("load", "Load browser exports", "Normalize browser history exports and load them into the store.", cmds.Load)
	parser.AddCommand("enrich", "Fetch titles and favicons", "Fetch titles and favicons for domains not yet checked.", cmds.Enrich)
	parser.AddCommand("generate", "Write heatmap JSON and sprites", "Write level0.json, level1-D-HH.json and favicon sprite sheets.", cmds.Generate)
	parser.AddCommand("status", "Show store statistics", "Show visit, domain and enrichment statistics.", cmds.Status)
	parser.AddCommand("backup", "Back up the store and category files", "Snapshot the database and category files into a timestamped backup.", cmds.Backup)
	parser.AddCommand("repair", "Recompute visit counts", "Recompute every domain's num_visits from the visits table.", cmds.Repair)

	return parser, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(ctx context.Context, version string) error {
	return RunWithArgs(ctx, version, os.Args[1:])
}

// RunWithArgs parses args and executes the matched subcommand.
func RunWithArgs(ctx context.Context, version string, args []string) error {
	return run(ctx, version, args, os.Stdout, os.Stderr, os.Stdin)
}

func run(ctx context.Context, version string, args []string, stdout, stderr io.Writer, stdin io.Reader) error {
	// go-flags requires a subcommand, but --version is valid without one.
	for _, arg := range args {
		if arg == "--version" {
			fmt.Fprintf(stdout, "historyview %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	a := &app{
		ctx:     ctx,
		version: version,
		globals: &GlobalFlags{},
		stdout:  stdout,
		stderr:  stderr,
		stdin:   stdin,
	}
	parser, _ := buildParser(a)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return nil
		}
		return err
	}
	return nil
}
