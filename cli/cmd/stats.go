package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/journal"
)

// StatsCommand returns the stats command.
// Stats come from the run-metrics records serve journals at scope end.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show run statistics from the journal",
		Flags: append(TUIReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run to show (default: most recent run)",
			},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	rd, err := openReader(c)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rec, err := rd.Stats(ctx, c.String("run-id"))
	switch {
	case errors.Is(err, journal.ErrNoRunMetrics):
		return cli.Exit("no run metrics journaled yet", 1)
	case err != nil:
		return fmt.Errorf("failed to read run metrics: %w", err)
	}

	return renderResult(c, "stats_run", rec)
}
