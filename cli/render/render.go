// Package render turns reader views into sluice CLI output.
//
// Format selection:
//   - a TTY stdout defaults to table, anything else to json
//   - --format overrides the default
//   - unknown formats are errors
//
// --no-color applies to table output only; the TUI styles itself.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/sluice/cli/tui"
)

// Format selects an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat recognizes the supported format names. Empty input parses to
// the empty Format so the caller can pick a TTY-dependent default.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML:
		return f, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes view data to one writer in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a stdout renderer from the command's format flags.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: os.Stdout}, nil
}

// NewRendererWithWriter builds a renderer over an arbitrary writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		return enc.Encode(data)
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI hands data to the interactive view. TUI mode is opt-in and
// read-only; views without a TUI model are rejected.
func (r *Renderer) RenderTUI(view string, data any) error {
	if !tui.IsTUISupported(view) {
		return fmt.Errorf("--tui is not supported for %s", view)
	}
	return tui.Run(view, data)
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice {
		return listTable(w, v)
	}
	return detailTable(w, data)
}

// listTable prints one row per slice element under a header row taken from
// the first element.
func listTable(w *tabwriter.Writer, v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return nil
	}

	headers := columnNames(v.Index(0))
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for i := range v.Len() {
		fmt.Fprintln(w, strings.Join(columnValues(v.Index(i), headers), "\t"))
	}
	return nil
}

// detailTable prints name:value lines for a single struct or map.
func detailTable(w *tabwriter.Writer, data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			fmt.Fprintf(w, "%s:\t%s\n", columnName(t.Field(i)), cell(v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), cell(iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

func columnNames(v reflect.Value) []string {
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	var names []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			names = append(names, columnName(t.Field(i)))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			names = append(names, fmt.Sprintf("%v", key.Interface()))
		}
	}
	return names
}

func columnValues(v reflect.Value, headers []string) []string {
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	var cells []string
	switch v.Kind() {
	case reflect.Struct:
		for i := range v.NumField() {
			cells = append(cells, cell(v.Field(i)))
		}
	case reflect.Map:
		for _, h := range headers {
			if mv := v.MapIndex(reflect.ValueOf(h)); mv.IsValid() {
				cells = append(cells, cell(mv))
			} else {
				cells = append(cells, "")
			}
		}
	}
	return cells
}

// columnName prefers the json tag over the lowercased field name.
func columnName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(f.Name)
}

// cell collapses composite values so a row stays on one line.
func cell(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if v.Type() == reflect.TypeFor[time.Time]() {
			return fmt.Sprintf("%v", v.Interface())
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY reports whether f is a character device.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
