package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/wire"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools. They are read-only.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (frames)",
		Subcommands: []*cli.Command{
			debugFramesCommand(),
		},
	}
}

func debugFramesCommand() *cli.Command {
	return &cli.Command{
		Name:      "frames",
		Usage:     "Decode a framed envelope stream, one JSON line per intent",
		ArgsUsage: "[file]",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Stop after N frames (0 = all)",
			},
		),
		Action: debugFramesAction,
	}
}

func debugFramesAction(c *cli.Context) error {
	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	var in io.Reader = os.Stdin
	if c.NArg() > 0 {
		f, err := os.Open(c.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open frame stream: %v", err), 1)
		}
		defer iox.DiscardClose(f)
		in = f
	}

	return decodeFrames(in, os.Stdout, os.Stderr, c.Int("limit"))
}

// decodeFrames reads frames from in until EOF or limit. Decode failures
// are skipped with a warning; a desynchronized stream ends the walk.
func decodeFrames(in io.Reader, out, warn io.Writer, limit int) error {
	dec := wire.NewFrameDecoder(in)
	enc := json.NewEncoder(out)

	for n := 0; limit <= 0 || n < limit; n++ {
		env, err := dec.ReadEnvelope()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if wire.IsFatalFrameError(err) {
				return cli.Exit(fmt.Sprintf("frame stream corrupt: %v", err), 1)
			}
			fmt.Fprintf(warn, "Warning: skipping frame: %v\n", err)
			continue
		}
		if err := enc.Encode(env); err != nil {
			return err
		}
	}
	return nil
}
