// Package prompt asks the operator questions during an interactive release:
// picking an environment or an increment, typing a version, confirming a tag.
package prompt

import (
	"context"
	"errors"
)

// ErrAborted is returned when the operator dismisses a prompt.
var ErrAborted = errors.New("prompt aborted")

// Choice is one selectable answer. Hint is rendered next to the label.
type Choice struct {
	Label string
	Hint  string
	Value any
}

// Prompter asks questions. Implementations block until answered, dismissed, or
// ctx is cancelled.
type Prompter interface {
	Select(ctx context.Context, message string, choices []Choice) (Choice, error)
	Input(ctx context.Context, message string) (string, error)
	Confirm(ctx context.Context, message string, def bool) (bool, error)
}
