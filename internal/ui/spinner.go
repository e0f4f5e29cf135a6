// spinner.go animates the label of a hook script or git call while it runs.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/mattn/go-runewidth"
)

const (
	doneMark = "[done]"
	failMark = "[fail]"
)

// Spinner wraps tasks in an animation when output goes to an interactive
// terminal. Otherwise tasks run silently, with the label printed once in
// verbose mode.
type Spinner struct {
	Out     io.Writer
	Enabled bool
	Verbose bool
	// Width caps the rendered label; 0 leaves it untouched.
	Width int
	Style spinner.Spinner
}

// NewSpinner enables the animation only for a terminal outside CI and verbose mode.
func NewSpinner(out io.Writer, ci, verbose bool) *Spinner {
	cols, tty := TerminalWidth(out)
	return &Spinner{
		Out:     out,
		Enabled: tty && !ci && !verbose,
		Verbose: verbose,
		Width:   cols,
		Style:   spinner.Line,
	}
}

// Show runs task under a spinner labelled label.
func (s *Spinner) Show(label string, task func() error) error {
	if s == nil || s.Out == nil || !s.Enabled {
		if s != nil && s.Out != nil && s.Verbose && label != "" {
			fmt.Fprintln(s.Out, label)
		}
		return task()
	}
	label = s.fit(label)
	stop := s.animate(label)
	err := task()
	stop()
	mark := doneMark
	if err != nil {
		mark = failMark
	}
	fmt.Fprintf(s.Out, "\r%s %s\n", label, mark)
	return err
}

// fit truncates label so the label and its status mark stay on one line.
func (s *Spinner) fit(label string) string {
	room := s.Width - len(doneMark) - 2
	if s.Width <= 0 || room <= 0 || runewidth.StringWidth(label) <= room {
		return label
	}
	return runewidth.Truncate(label, room, "…")
}

func (s *Spinner) animate(label string) func() {
	style := s.Style
	if len(style.Frames) == 0 {
		style = spinner.Line
	}
	fps := style.FPS
	if fps <= 0 {
		fps = 120 * time.Millisecond
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(fps)
		defer ticker.Stop()
		for frame := 0; ; frame = (frame + 1) % len(style.Frames) {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprintf(s.Out, "\r%s %s", label, style.Frames[frame])
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}
