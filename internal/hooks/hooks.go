// Package hooks runs the user scripts configured around each plugin
// lifecycle call. Keys join a phase and a target with colons:
//
//	before:<stage>              once, ahead of the first plugin of the stage
//	before:<namespace>:<stage>  around every plugin call
//	after:<namespace>:<stage>
//	after:<stage>               once, after the last plugin of the stage
//
// The bare before and after keys bracket the whole release.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/shell"
	"github.com/example/releaser/internal/ui"
)

// Phases.
const (
	Before = "before"
	After  = "after"
)

// Dispatcher resolves hook keys against the context and runs their scripts.
type Dispatcher struct {
	cfg      *config.Config
	exec     *shell.Executor
	spinner  *ui.Spinner
	observer func(key, script string)
}

// New returns a Dispatcher. spinner may be nil.
func New(cfg *config.Config, exec *shell.Executor, spinner *ui.Spinner) *Dispatcher {
	return &Dispatcher{cfg: cfg, exec: exec, spinner: spinner}
}

// Observe registers fn to be told about every script before it runs.
func (d *Dispatcher) Observe(fn func(key, script string)) *Dispatcher {
	d.observer = fn
	return d
}

// Scripts returns the scripts configured under key, a string or a list.
func (d *Dispatcher) Scripts(key string) []string {
	return config.ToStringSlice(d.cfg.Map("hooks")[key])
}

// Run executes the scripts under parts joined by colons. The first failing
// script aborts the run.
func (d *Dispatcher) Run(ctx context.Context, parts ...string) error {
	key := strings.Join(parts, ":")
	for _, script := range d.Scripts(key) {
		if d.observer != nil {
			d.observer(key, script)
		}
		err := d.spinner.Show(script, func() error {
			_, err := d.exec.Exec(ctx, script, shell.Hook)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", exit.ErrHook, key, err)
		}
	}
	return nil
}

// RunPhase runs the bare before or after hooks of the whole release.
func (d *Dispatcher) RunPhase(ctx context.Context, phase string) error {
	return d.Run(ctx, phase)
}

// RunLifecycle brackets call, the stage method of p, with hooks. ordering is
// the active plugin order of the stage and decides whether the global hooks
// fire. A call returning plugin.ErrSkip suppresses the after hooks and is
// not reported as an error.
func (d *Dispatcher) RunLifecycle(ctx context.Context, ordering []plugin.Plugin, p plugin.Plugin, stage string, call func(context.Context) error) error {
	first := len(ordering) > 0 && ordering[0] == p
	last := len(ordering) > 0 && ordering[len(ordering)-1] == p
	ns := p.Namespace()

	if first {
		if err := d.Run(ctx, Before, stage); err != nil {
			return err
		}
	}
	if err := d.Run(ctx, Before, ns, stage); err != nil {
		return err
	}
	if err := call(ctx); err != nil {
		if errors.Is(err, plugin.ErrSkip) {
			return nil
		}
		return err
	}
	if err := d.Run(ctx, After, ns, stage); err != nil {
		return err
	}
	if last {
		return d.Run(ctx, After, stage)
	}
	return nil
}

// RunStage calls stage on every plugin of ordering in turn, bracketed by
// hooks. version is passed to bump.
func (d *Dispatcher) RunStage(ctx context.Context, ordering []plugin.Plugin, stage, version string) error {
	for _, p := range ordering {
		err := d.RunLifecycle(ctx, ordering, p, stage, func(ctx context.Context) error {
			return plugin.Call(ctx, p, stage, version)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
