// Package exit classifies release failures and maps them to process exit codes.
package exit

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the release pipeline. Callers match them with errors.Is.
var (
	ErrConfig       = errors.New("configuration error")
	ErrConnectivity = errors.New("connectivity error")
	ErrTagExists    = errors.New("tag already exists")
	ErrResolution   = errors.New("no version resolved")
	ErrHook         = errors.New("hook script failed")
	ErrPluginLoad   = errors.New("plugin load error")
)

// Error carries an explicit process exit code. Code 0 marks a deliberate,
// successful early stop (for example a declined prompt).
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Stop returns an error that ends the run successfully.
func Stop(message string) error {
	return &Error{Code: 0, Err: errors.New(message)}
}

// InterruptedCode is the conventional status of a run stopped by SIGINT.
const InterruptedCode = 130

// Interrupted marks a run the operator stopped, by signal or by dismissing a
// prompt.
func Interrupted(err error) error {
	return &Error{Code: InterruptedCode, Err: err}
}

// Wrap attaches kind to a formatted message so errors.Is(err, kind) holds.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Code maps err to a process exit code: nil is 0, an *Error reports its own
// code, everything else is 1.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return 1
}

// IsStop reports whether err is a deliberate successful stop.
func IsStop(err error) bool {
	var coded *Error
	return errors.As(err, &coded) && coded.Code == 0
}
