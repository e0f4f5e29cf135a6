package prompt

import (
	"context"
	"fmt"
)

// Scripted answers prompts from pre-recorded replies, in order. It is meant
// for tests and for driving the pipeline from code.
type Scripted struct {
	// Selects holds the index chosen for each Select call.
	Selects []int
	// Inputs holds the text returned for each Input call.
	Inputs []string
	// Confirms holds the answer for each Confirm call.
	Confirms []bool
	// Asked records every prompt message in order.
	Asked []string
}

// Select implements Prompter.
func (s *Scripted) Select(_ context.Context, message string, choices []Choice) (Choice, error) {
	s.Asked = append(s.Asked, message)
	if len(s.Selects) == 0 {
		return Choice{}, fmt.Errorf("unexpected select prompt %q", message)
	}
	idx := s.Selects[0]
	s.Selects = s.Selects[1:]
	if idx < 0 || idx >= len(choices) {
		return Choice{}, ErrAborted
	}
	return choices[idx], nil
}

// Input implements Prompter.
func (s *Scripted) Input(_ context.Context, message string) (string, error) {
	s.Asked = append(s.Asked, message)
	if len(s.Inputs) == 0 {
		return "", fmt.Errorf("unexpected input prompt %q", message)
	}
	v := s.Inputs[0]
	s.Inputs = s.Inputs[1:]
	return v, nil
}

// Confirm implements Prompter.
func (s *Scripted) Confirm(_ context.Context, message string, def bool) (bool, error) {
	s.Asked = append(s.Asked, message)
	if len(s.Confirms) == 0 {
		return def, nil
	}
	v := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return v, nil
}
