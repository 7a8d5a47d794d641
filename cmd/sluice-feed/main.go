// Package main provides the sluice-feed bridge entrypoint.
//
// sluice-feed reads one JSON intent object per line on stdin and writes
// length-prefixed msgpack envelopes on stdout, the frame format
// `sluice serve --stdin` consumes:
//
//	sluice-feed < intents.jsonl | sluice serve --stdin
//
// Missing contract fields are filled in: sequence numbers are assigned
// monotonically, intent ids derive from the sequence, and the timestamp
// and contract version default to the current contract.
//
// Exit codes:
//   - 0: all lines framed (or skipped with a warning)
//   - 1: invalid input in --strict mode, or an I/O failure
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/types"
	"github.com/pithecene-io/sluice/wire"
)

// commit is stamped by release builds through -ldflags.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "sluice-feed",
		Usage:          "Frame JSON intent lines for sluice serve --stdin",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail on the first invalid line instead of skipping it",
			},
			&cli.Int64Flag{
				Name:  "seq-start",
				Usage: "First sequence number assigned to unnumbered lines",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the summary line on stderr",
			},
		},
		Action: feedAction,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func feedAction(c *cli.Context) error {
	out := bufio.NewWriter(os.Stdout)
	defer iox.DiscardErr(out.Flush)

	opts := frameOptions{
		strict:   c.Bool("strict"),
		seqStart: c.Int64("seq-start"),
	}

	stats, err := frameLines(os.Stdin, out, os.Stderr, opts)
	if err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush stdout: %w", err)
	}

	if !c.Bool("quiet") {
		fmt.Fprintf(os.Stderr, "sluice-feed: framed=%d skipped=%d\n", stats.framed, stats.skipped)
	}
	return nil
}

type frameOptions struct {
	strict   bool
	seqStart int64
}

type frameStats struct {
	framed  int64
	skipped int64
}

// frameLines converts JSON intent lines from in to framed envelopes on out.
// Blank lines are ignored. Invalid lines are skipped with a warning on warn,
// or abort the walk in strict mode.
func frameLines(in io.Reader, out io.Writer, warn io.Writer, opts frameOptions) (frameStats, error) {
	var stats frameStats

	seq := opts.seqStart
	if seq < 1 {
		seq = 1
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), wire.MaxPayloadSize)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var env wire.IntentEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			if opts.strict {
				return stats, cli.Exit(fmt.Sprintf("line %d: invalid JSON: %v", lineNo, err), 1)
			}
			fmt.Fprintf(warn, "Warning: line %d: invalid JSON: %v\n", lineNo, err)
			stats.skipped++
			continue
		}

		fillDefaults(&env, &seq)
		if err := env.Validate(); err != nil {
			if opts.strict {
				return stats, cli.Exit(fmt.Sprintf("line %d: %v", lineNo, err), 1)
			}
			fmt.Fprintf(warn, "Warning: line %d: %v\n", lineNo, err)
			stats.skipped++
			continue
		}

		if err := wire.WriteEnvelope(out, &env); err != nil {
			return stats, fmt.Errorf("line %d: write frame: %w", lineNo, err)
		}
		stats.framed++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read stdin: %w", err)
	}
	return stats, nil
}

// fillDefaults completes the contract fields an authored line may omit.
// seq advances only when the line carried no explicit sequence number.
func fillDefaults(env *wire.IntentEnvelope, seq *int64) {
	if env.ContractVersion == "" {
		env.ContractVersion = wire.ContractVersion
	}
	if env.Seq == 0 {
		env.Seq = *seq
		*seq++
	}
	if env.IntentID == "" {
		env.IntentID = fmt.Sprintf("in-%06d", env.Seq)
	}
	if env.Ts == "" {
		env.Ts = wire.Timestamp(time.Now())
	}
}

