// Package console renders user-facing output: status lines, panels, the
// banner and markdown replies from the planning model. Diagnostics belong in
// internal/logger instead.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/glamour/v2"
	"charm.land/lipgloss/v2"
)

// Palette (Catppuccin Mocha).
const (
	colorPrimary   = "#cba6f7"
	colorSecondary = "#89b4fa"
	colorSuccess   = "#a6e3a1"
	colorWarning   = "#f9e2af"
	colorError     = "#f38ba8"
	colorMuted     = "#6c7086"
	colorText      = "#cdd6f4"
)

const maxMarkdownWidth = 100

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorSecondary)).
			Foreground(lipgloss.Color(colorText)).
			Padding(0, 1)
)

// Console writes styled lines to an output and an error stream.
type Console struct {
	out io.Writer
	err io.Writer
}

// New returns a Console writing normal output to out and warnings/errors to errOut.
func New(out, errOut io.Writer) *Console {
	return &Console{out: out, err: errOut}
}

// Default writes to the process stdout and stderr.
var Default = New(os.Stdout, os.Stderr)

// Out returns the normal output stream.
func (c *Console) Out() io.Writer { return c.out }

// Print writes an unstyled line.
func (c *Console) Print(format string, args ...any) {
	fmt.Fprintln(c.out, fmt.Sprintf(format, args...))
}

// Step announces the start of a phase.
func (c *Console) Step(format string, args ...any) {
	fmt.Fprintln(c.out, stepStyle.Render("» "+fmt.Sprintf(format, args...)))
}

// Success writes a check-marked line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.out, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Muted writes a dimmed line.
func (c *Console) Muted(format string, args ...any) {
	fmt.Fprintln(c.out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn writes a warning line to the error stream.
func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.err, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Error writes an error line to the error stream.
func (c *Console) Error(format string, args ...any) {
	fmt.Fprintln(c.err, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Panel draws body inside a rounded border with a title line.
func (c *Console) Panel(title, body string) {
	content := strings.TrimRight(body, "\n")
	if title != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), "", content)
	}
	fmt.Fprintln(c.out, panelStyle.Render(content))
}

// Markdown renders md with glamour, falling back to the raw text.
func (c *Console) Markdown(md string) {
	fmt.Fprintln(c.out, RenderMarkdown(md, maxMarkdownWidth))
}

// RenderMarkdown renders markdown for the terminal at the given width.
// Rendering failures return content unchanged.
func RenderMarkdown(content string, width int) string {
	if width <= 0 || width > maxMarkdownWidth {
		width = maxMarkdownWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

var labelColors = []string{colorSecondary, colorSuccess, colorPrimary, colorWarning, colorError}

// Label renders a bracketed tag for prefixed output, colored by idx.
func Label(text string, idx int) string {
	color := labelColors[idx%len(labelColors)]
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render("[" + text + "]")
}
