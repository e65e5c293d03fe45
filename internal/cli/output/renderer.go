package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	tty    bool
	styles *Styles
}

// NewRenderer creates a renderer. Colors are only emitted when out is a
// terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with explicit terminal detection.
func NewRendererWithTTY(out, errOut io.Writer, tty bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}

	lr := lipgloss.NewRenderer(out)
	if tty {
		lr.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{out: out, errOut: errOut, mode: mode, tty: tty, styles: newStyles(lr)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.tty }

// Mode returns the configured mode.
func (r *Renderer) Mode() Mode { return r.mode }

// EffectiveMode resolves auto to text on a terminal and markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.tty {
		return ModeText
	}
	return ModeMarkdown
}

// Styles returns the styles bound to this renderer's color profile.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the primary output.
func (r *Renderer) Writer() io.Writer { return r.out }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header: markdown hashes in markdown mode,
// styled text otherwise.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(strings.Repeat("#", level) + " " + text)
		r.Println("")
		return
	}
	style := r.styles.Header2
	if level <= 1 {
		style = r.styles.Header1
	}
	r.Println(style.Render(text))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.StatusSuccess.String() + " " + r.styles.Success.Render(msg))
}

// Warning writes a warning to the error stream.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("warning: "+msg))
}

// Error writes an error to the error stream.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("error: "+msg))
}

// Muted writes de-emphasized text.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// StatusLine writes "<icon> name detail" for status success, failed,
// running or pending.
func (r *Renderer) StatusLine(name, status, detail string) {
	icon := r.styles.StatusPending.String()
	switch status {
	case "success":
		icon = r.styles.StatusSuccess.String()
	case "failed":
		icon = r.styles.StatusFailed.String()
	case "running":
		icon = r.styles.StatusRunning.String()
	}
	line := icon + " " + name
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML. Values go through their JSON encoding first so
// field names and custom marshalers match the JSON output.
func (r *Renderer) YAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Table writes rows under header, as a markdown table in markdown mode and
// a box-drawn table otherwise.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	h := make(table.Row, len(header))
	for i, c := range header {
		h[i] = c
	}
	t.AppendHeader(h)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, c := range row {
			tr[i] = c
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

// ProgressBar renders a fixed-width bar for a 0..100 percentage.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
