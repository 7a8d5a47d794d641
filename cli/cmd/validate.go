package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/runtime"
)

// ValidateCommand returns the validate command.
// Validate checks a config file without starting a run. On success it
// prints the resolved config; the exit code is the signal for scripts.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a sluice.yaml config file",
		ArgsUsage: "<config-file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the resolved config output",
			},
		},
		Action: validateAction,
	}
}

func validateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("config file required", runtime.ExitCodeInvalidInput)
	}
	path := c.Args().First()

	cfg, err := config.Load(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), runtime.ExitCodeInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), runtime.ExitCodeInvalidInput)
	}

	if !c.Bool("quiet") {
		resolved, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render resolved config: %w", err)
		}
		_, _ = os.Stdout.Write(resolved)
	}
	return nil
}
