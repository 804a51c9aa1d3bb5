package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// PrettyLogger writes styled, user-facing CLI output. Unlike the
// component loggers it is never written to the log file.
type PrettyLogger struct {
	w io.Writer
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true)
)

// NewPrettyLogger creates a pretty logger writing to stdout.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{w: os.Stdout}
}

// WithWriter redirects output, usually to cmd.OutOrStdout().
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.w = w
	return p
}

func (p *PrettyLogger) Success(message string) {
	fmt.Fprintln(p.w, successStyle.Render("✓ "+message))
}

func (p *PrettyLogger) Info(message string) {
	fmt.Fprintln(p.w, infoStyle.Render(message))
}

func (p *PrettyLogger) Warn(message string) {
	fmt.Fprintln(p.w, warnStyle.Render("⚠ "+message))
}

// Error prints message and, when err is non-nil, its cause.
func (p *PrettyLogger) Error(message string, err error) {
	if err != nil {
		message += ": " + err.Error()
	}
	fmt.Fprintln(p.w, errorStyle.Render("✗ "+message))
}

// Field prints a "key: value" line.
func (p *PrettyLogger) Field(key string, value interface{}) {
	fmt.Fprintf(p.w, "%s: %s\n", keyStyle.Render(key), valueStyle.Render(fmt.Sprint(value)))
}

// Path prints a labelled file path.
func (p *PrettyLogger) Path(label, path string) {
	fmt.Fprintf(p.w, "%s: %s\n", keyStyle.Render(label), pathStyle.Render(path))
}
