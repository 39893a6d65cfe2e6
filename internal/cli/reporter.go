// Package cli provides the cryptfolder command-line interface.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#9ece6a")
	warningColor = lipgloss.Color("#e0af68")
	errorColor   = lipgloss.Color("#f7768e")
	labelColor   = lipgloss.Color("#7aa2f7")
	dimColor     = lipgloss.Color("#565f89")

	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(labelColor).Width(12)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
)

// Reporter prints user-facing output. Results go to out, diagnostics to
// errOut. In quiet mode only errors are printed.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	quiet  bool
}

// NewReporter creates a reporter writing to out and errOut.
func NewReporter(out, errOut io.Writer, quiet bool) *Reporter {
	return &Reporter{out: out, errOut: errOut, quiet: quiet}
}

func (r *Reporter) write(w io.Writer, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(w, line)
}

// PrintError prints an error message.
func (r *Reporter) PrintError(format string, args ...any) {
	r.write(r.errOut, errorStyle.Render("Error:")+" "+fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message.
func (r *Reporter) PrintWarning(format string, args ...any) {
	if r.quiet {
		return
	}
	r.write(r.errOut, warningStyle.Render("Warning:")+" "+fmt.Sprintf(format, args...))
}

// PrintSuccess prints a success message.
func (r *Reporter) PrintSuccess(format string, args ...any) {
	if r.quiet {
		return
	}
	r.write(r.out, successStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// PrintInfo prints a plain progress line.
func (r *Reporter) PrintInfo(format string, args ...any) {
	if r.quiet {
		return
	}
	r.write(r.out, dimStyle.Render(fmt.Sprintf(format, args...)))
}

// PrintField prints one "label  value" row of a status listing. Fields are
// printed even in quiet mode since they are the command's result.
func (r *Reporter) PrintField(label string, value any) {
	r.write(r.out, labelStyle.Render(strings.TrimSpace(label))+" "+fmt.Sprint(value))
}
