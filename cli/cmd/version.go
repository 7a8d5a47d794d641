package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/types"
)

// VersionInfo is the version command's output view.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand reports the release version and the build commit injected
// via ldflags.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version", 1)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(VersionInfo{Version: types.Version, Commit: commit})
		},
	}
}
