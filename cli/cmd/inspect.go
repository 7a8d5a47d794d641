package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/journal"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single entity.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entity (run)",
		Subcommands: []*cli.Command{
			inspectRunCommand(),
		},
	}
}

func inspectRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Inspect a run's latest state and recent events",
		ArgsUsage: "<run-id>",
		Flags: append(TUIReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "event-type",
				Usage: "Only show events of this type",
			},
			&cli.IntFlag{
				Name:  "events",
				Usage: "Number of trailing events to show (0 = all)",
				Value: 20,
			},
		),
		Action: inspectRunAction,
	}
}

func inspectRunAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}
	runID := c.Args().First()

	rd, err := openReader(c)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	view, err := rd.InspectRun(ctx, runID, c.String("event-type"), c.Int("events"))
	switch {
	case errors.Is(err, journal.ErrNoSnapshots):
		return cli.Exit(fmt.Sprintf("run not found: %s", runID), 1)
	case err != nil:
		return fmt.Errorf("failed to read run: %w", err)
	}

	return renderResult(c, "inspect_run", view)
}
