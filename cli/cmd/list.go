package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// ListCommand returns the list command with subcommands.
// List output is thin summaries; inspect returns full detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (runs)",
		Subcommands: []*cli.Command{
			listRunsCommand(),
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List journaled runs, newest first",
		Flags: append(TUIReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
			},
		),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	rd, err := openReader(c)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	limit := c.Int("limit")
	results, err := rd.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if !c.Bool("tui") {
		warnLargeListing(len(results), limit)
	}
	return renderResult(c, "list_runs", results)
}

// Listings longer than this get a --limit hint on stderr.
const listWarningThreshold = 100

// warnLargeListing nudges interactive users toward --limit. Quiet when a
// limit was given or stderr is piped.
func warnLargeListing(n, limit int) {
	if n > listWarningThreshold && limit == 0 && stderrIsTerminal() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", n)
	}
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
