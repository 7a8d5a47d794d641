package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/reader"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/journal"
)

// queryTimeout bounds read-only journal queries.
const queryTimeout = 30 * time.Second

// openReader opens the journal named by the shared journal flags for
// querying.
func openReader(c *cli.Context) (*reader.Reader, error) {
	j, err := journal.NewReader(journal.Config{
		Backend: journal.Backend(c.String("journal")),
		Root:    c.String("journal-root"),
		S3: journal.S3Config{
			Bucket:       c.String("s3-bucket"),
			Prefix:       c.String("s3-prefix"),
			Region:       c.String("s3-region"),
			Endpoint:     c.String("s3-endpoint"),
			UsePathStyle: c.Bool("s3-path-style"),
		},
	})
	if err != nil {
		return nil, err
	}
	return reader.New(j), nil
}

// renderResult renders v through the format flags on c, switching to the
// named TUI view when --tui is set.
func renderResult(c *cli.Context, view string, v any) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI(view, v)
	}
	return r.Render(v)
}
