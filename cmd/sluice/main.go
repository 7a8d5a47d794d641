// Package main provides the sluice CLI entrypoint.
//
// All commands except `serve` are read-only.
//
// Usage:
//
//	sluice <command> [subcommand] [options]
//
// Exit codes for `serve`:
//   - 0: run completed
//   - 1: terminal handler failure
//   - 2: run canceled
//   - 3: invalid input or config
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/cmd"
	"github.com/pithecene-io/sluice/types"
)

// commit is stamped by release builds through -ldflags.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "sluice",
		Usage:          "Sluice intent pipeline CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.ListCommand(),
			cmd.ValidateCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors; anything
		// still here was an unwrapped failure.
		os.Exit(1)
	}
}

// exitErrHandler propagates codes from cli.Exit() so serve outcome codes
// reach the caller.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		if msg := exitMessage(coder); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(coder.ExitCode())
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitMessage returns the coder's printable message. cli.Exit("", n)
// stringifies as "exit status n"; that placeholder stays silent.
func exitMessage(coder cli.ExitCoder) string {
	msg := coder.Error()
	if msg == fmt.Sprintf("exit status %d", coder.ExitCode()) {
		return ""
	}
	return msg
}
