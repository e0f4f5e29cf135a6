// File: internal/ui/term.go
// Brief: Internal ui package implementation for 'terminal helpers'.

package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

type fdProvider interface {
	Fd() uintptr
}

// TerminalWidth reports the column count of w when it is a terminal.
func TerminalWidth(w io.Writer) (int, bool) {
	if v, ok := w.(fdProvider); ok {
		if cols, _, err := term.GetSize(int(v.Fd())); err == nil {
			return cols, true
		}
	}
	return 0, false
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
