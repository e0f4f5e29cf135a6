package plugin

import "context"

// FirstAnswer asks each plugin in order and returns the first non-zero answer.
// Later plugins are not consulted once one answers. An error aborts the
// cascade. With no answer the zero value is returned.
func FirstAnswer[T comparable](ctx context.Context, plugins []Plugin, query func(context.Context, Plugin) (T, error)) (T, error) {
	var zero T
	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		answer, err := query(ctx, p)
		if err != nil {
			return zero, err
		}
		if answer != zero {
			return answer, nil
		}
	}
	return zero, nil
}
