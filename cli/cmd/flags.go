// Package cmd provides CLI commands for the sluice binary.
package cmd

import "github.com/urfave/cli/v2"

// renderFlags control output formatting. Every read-only command takes
// them, including --tui, so commands without a TUI view can reject the
// flag with a clear message instead of a flag parse error.
func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, table, yaml",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Enable interactive TUI mode (inspect, stats, list only)",
		},
	}
}

// journalFlags locate the journal a read-only command queries.
func journalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "journal",
			Usage: "Journal backend: fs, s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "journal-root",
			Usage: "Filesystem journal root (fs backend)",
		},
		&cli.StringFlag{
			Name:  "s3-bucket",
			Usage: "S3 bucket name (s3 backend)",
		},
		&cli.StringFlag{
			Name:  "s3-prefix",
			Usage: "S3 key prefix (s3 backend)",
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "S3 region (s3 backend)",
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Each call builds fresh flag values so commands never share parse state.
func ReadOnlyFlags() []cli.Flag {
	return append(renderFlags(), journalFlags()...)
}

// TUIReadOnlyFlags returns flags for commands that render a TUI view.
// Identical to ReadOnlyFlags; the name marks which commands honor --tui.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}
