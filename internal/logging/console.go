// console.go renders user-facing release output: banners, warnings, and the commands being executed.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Console prints release progress for humans. CI mode drops the blank lines
// that frame obtrusive messages on a terminal.
type Console struct {
	Out       io.Writer
	Err       io.Writer
	CI        bool
	Verbosity int
	DryRun    bool
}

// NewConsole returns a Console writing to stdout and stderr.
func NewConsole(ci bool, verbosity int, dryRun bool) *Console {
	return &Console{Out: os.Stdout, Err: os.Stderr, CI: ci, Verbosity: verbosity, DryRun: dryRun}
}

var (
	warnLabel  = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	gray       = color.New(color.FgHiBlack).SprintFunc()
	// Yellow and Cyan highlight values inside banners.
	Yellow = color.New(color.FgYellow).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	// Gray de-emphasizes secondary text.
	Gray = gray
)

func (c *Console) out() io.Writer {
	if c == nil || c.Out == nil {
		return io.Discard
	}
	return c.Out
}

func (c *Console) errOut() io.Writer {
	if c == nil || c.Err == nil {
		return c.out()
	}
	return c.Err
}

// Log prints a plain line.
func (c *Console) Log(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

// Info prints a secondary line.
func (c *Console) Info(args ...any) {
	if len(args) == 0 {
		fmt.Fprintln(c.out())
		return
	}
	fmt.Fprintln(c.out(), gray(fmt.Sprint(args...)))
}

// Warn prints a warning line.
func (c *Console) Warn(args ...any) {
	fmt.Fprintf(c.errOut(), "%s %s\n", warnLabel("WARNING"), fmt.Sprint(args...))
}

// Error prints an error line.
func (c *Console) Error(args ...any) {
	fmt.Fprintf(c.errOut(), "%s %s\n", errorLabel("ERROR"), fmt.Sprint(args...))
}

// Obtrusive prints a message framed by blank lines on a terminal.
func (c *Console) Obtrusive(args ...any) {
	if c != nil && !c.CI {
		fmt.Fprintln(c.out())
	}
	fmt.Fprintln(c.out(), args...)
	if c != nil && !c.CI {
		fmt.Fprintln(c.out())
	}
}

// Verbose prints when the verbosity is at least level.
func (c *Console) Verbose(level int, args ...any) {
	if c == nil || c.Verbosity < level {
		return
	}
	fmt.Fprintln(c.out(), gray(fmt.Sprint(args...)))
}

// Exec echoes a command line. Commands are shown in verbose or dry-run mode;
// commands skipped by dry-run are marked with "!".
func (c *Console) Exec(command []string, skipped bool, external bool) {
	if c == nil || (c.Verbosity == 0 && !c.DryRun) {
		return
	}
	if !external && c.Verbosity < 2 && !c.DryRun {
		return
	}
	prefix := "$"
	if skipped {
		prefix = "!"
	}
	fmt.Fprintln(c.out(), gray(prefix+" "+strings.Join(command, " ")))
}
