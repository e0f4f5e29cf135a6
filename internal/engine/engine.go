// File: internal/engine/engine.go
// Brief: Release pipeline (plugin resolution, version cascade, lifecycle stages).

// Package engine drives one release: it resolves the plugins of the run,
// takes them through init, asks them for the name and versions in cascade
// order, and then runs the bump and release stages bracketed by hooks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/environment"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/git"
	"github.com/example/releaser/internal/hooks"
	"github.com/example/releaser/internal/logging"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/prompt"
	"github.com/example/releaser/internal/rollback"
	"github.com/example/releaser/internal/semver"
	"github.com/example/releaser/internal/shell"
	"github.com/example/releaser/internal/telemetry"
	"github.com/example/releaser/internal/ui"
	"github.com/example/releaser/internal/version"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Deps is everything a run needs. Config and Console are required; the rest
// default to quiet or no-op implementations.
type Deps struct {
	Config   *config.Config
	Console  *logging.Console
	Log      logr.Logger
	Shell    *shell.Executor
	Prompt   prompt.Prompter
	Spinner  *ui.Spinner
	Rollback *rollback.Scope
	Tracer   *telemetry.Tracer
	Resolver *plugin.Resolver
	// Chdir switches to the working path. Defaults to os.Chdir.
	Chdir func(dir string) error
}

// Result reports what a run resolved.
type Result struct {
	RunID         string
	Name          string
	LatestVersion string
	Version       string
}

// DefaultKinds returns the internal plugins in their fixed order.
func DefaultKinds() []plugin.Kind {
	return []plugin.Kind{environment.Kind(), git.Kind(nil), version.Kind()}
}

type run struct {
	Deps
	hooks    *hooks.Dispatcher
	internal []plugin.Plugin
	external []plugin.Plugin
	result   Result
}

// Run executes the release pipeline. A failure is printed once and returned;
// deliberate stops are returned without an error line. Any armed rollback is
// fired before a failure is returned.
func Run(ctx context.Context, deps Deps) (Result, error) {
	r, err := newRun(deps)
	if err != nil {
		return Result{}, err
	}
	ctx, end := r.Tracer.Start(ctx, "release", attribute.String("run.id", r.result.RunID))
	err = r.execute(ctx)
	end(err)
	if err == nil {
		return r.result, nil
	}
	if r.Rollback != nil {
		r.Rollback.Fire()
	}
	if errors.Is(err, prompt.ErrAborted) || errors.Is(err, context.Canceled) {
		err = exit.Interrupted(err)
	}
	if exit.IsStop(err) {
		r.Console.Info(err.Error())
	} else {
		r.Console.Error(err.Error())
	}
	r.Log.V(1).Info("release failed", "runID", r.result.RunID, "code", exit.Code(err), "error", err.Error())
	return r.result, err
}

func newRun(deps Deps) (*run, error) {
	if deps.Config == nil {
		return nil, errors.New("engine: config is required")
	}
	if deps.Log.GetSink() == nil {
		deps.Log = logr.Discard()
	}
	if deps.Shell == nil {
		deps.Shell = shell.New(deps.Config, deps.Console, deps.Log)
	}
	if deps.Rollback == nil {
		deps.Rollback = rollback.NewScope()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Noop()
	}
	if deps.Resolver == nil {
		deps.Resolver = plugin.NewResolver(DefaultKinds(), nil)
	}
	if deps.Chdir == nil {
		deps.Chdir = os.Chdir
	}
	r := &run{Deps: deps, result: Result{RunID: uuid.NewString()}}
	r.Log = r.Log.WithValues("runID", r.result.RunID)
	r.hooks = hooks.New(deps.Config, deps.Shell, deps.Spinner).Observe(func(key, script string) {
		r.Tracer.CountHook()
		r.Log.V(1).Info("hook", "key", key, "script", script)
	})
	return r, nil
}

func (r *run) execute(ctx context.Context) error {
	cfg := r.Config
	if wp := cfg.String("working_path"); wp != "" {
		if err := r.Chdir(wp); err != nil {
			return exit.Wrap(exit.ErrConfig, "Invalid working path.\n%v", err)
		}
	}

	err := r.Tracer.Stage(ctx, "resolve", func(ctx context.Context) error {
		var err error
		r.internal, r.external, err = r.Resolver.Resolve(ctx, r.pluginDeps())
		return err
	})
	if err != nil {
		return err
	}

	if err := r.hooks.RunPhase(ctx, hooks.Before); err != nil {
		return err
	}
	if err := r.stage(ctx, plugin.StageInit, ""); err != nil {
		return err
	}

	ver, err := r.resolveVersion(ctx)
	if err != nil {
		return err
	}
	if ver == "" {
		r.Console.Log("\n🏁 Successful!")
		return nil
	}

	for _, stage := range []string{plugin.StageBeforeBump, plugin.StageBump, plugin.StageBeforeRelease, plugin.StageRelease, plugin.StageAfterRelease} {
		if err := r.stage(ctx, stage, ver); err != nil {
			return err
		}
	}
	if err := r.hooks.RunPhase(ctx, hooks.After); err != nil {
		return err
	}
	r.Console.Log("\n🏁 Successful!")
	r.Console.Verbose(1, r.Tracer.Summary().Line())
	return nil
}

// resolveVersion runs the cascades and returns the normalized version. An
// empty version with a nil error ends the run successfully.
func (r *run) resolveVersion(ctx context.Context) (string, error) {
	cfg := r.Config
	plugins := r.ordered(plugin.StageInit)

	name, err := plugin.FirstAnswer(ctx, plugins, func(ctx context.Context, p plugin.Plugin) (string, error) {
		return p.GetName(ctx)
	})
	if err != nil {
		return "", err
	}
	latest, err := plugin.FirstAnswer(ctx, plugins, func(ctx context.Context, p plugin.Plugin) (*plugin.LatestVersion, error) {
		return p.GetLatestVersion(ctx)
	})
	if err != nil {
		return "", err
	}
	if latest == nil {
		latest = &plugin.LatestVersion{}
	}

	base := plugin.IncrementBase{LatestVersion: latest.Version, Increment: semver.ParseIncrement(cfg.Get("increment"))}
	ver := latest.Version
	if cfg.IsIncrement() {
		inc, err := plugin.FirstAnswer(ctx, plugins, func(ctx context.Context, p plugin.Plugin) (semver.Increment, error) {
			return p.GetIncrement(ctx, base)
		})
		if err != nil {
			return "", err
		}
		base.Increment = inc
		ver, err = plugin.FirstAnswer(ctx, plugins, func(ctx context.Context, p plugin.Plugin) (string, error) {
			return p.GetIncrementedVersionCI(ctx, base)
		})
		if err != nil {
			return "", err
		}
	}

	r.result.Name = name
	r.result.LatestVersion = latest.Version
	cfg.Merge(map[string]any{
		"name":          name,
		"latestVersion": latest.Version,
		"version":       ver,
		"increment":     base.Increment.String(),
	})
	r.banner(latest)

	if cfg.IsIncrement() && ver == "" {
		ver, err = plugin.FirstAnswer(ctx, plugins, func(ctx context.Context, p plugin.Plugin) (string, error) {
			return p.GetIncrementedVersion(ctx, base)
		})
		if err != nil {
			return "", err
		}
	}
	if ver == "" {
		if cfg.IsCI() {
			return "", exit.Wrap(exit.ErrResolution, "The version is invalid")
		}
		r.Console.Obtrusive("The version is invalid")
		return "", nil
	}

	ver = version.Normalize(ver, cfg.String("tagRegex"))
	cfg.Merge(map[string]any{"version": ver})
	r.result.Version = ver
	if cfg.IsPromptOnlyVersion() {
		cfg.SetCI(true)
	}
	if cfg.IsCI() {
		r.Console.Obtrusive("> Release version " + logging.Yellow(ver))
	}
	return ver, nil
}

func (r *run) banner(latest *plugin.LatestVersion) {
	msg := ""
	if env := r.Config.String("environmentName"); env != "" {
		msg = "🚀 " + logging.Cyan(env) + "\n\n"
	}
	msg += "> Latest Version: " + logging.Yellow(latest.Version)
	if latest.TaggerName != "" && latest.TaggerDate != "" {
		msg += logging.Gray(fmt.Sprintf("\n# <Author>: %s <Date>: %s", latest.TaggerName, latest.TaggerDate))
	}
	r.Console.Obtrusive(msg)
}

func (r *run) ordered(stage string) []plugin.Plugin {
	return plugin.Order(stage, r.internal, r.external)
}

func (r *run) stage(ctx context.Context, stage, ver string) error {
	return r.Tracer.Stage(ctx, stage, func(ctx context.Context) error {
		return r.hooks.RunStage(ctx, r.ordered(stage), stage, ver)
	}, attribute.String("release.stage", stage))
}

func (r *run) pluginDeps() plugin.Deps {
	return plugin.Deps{
		Config:   r.Config,
		Shell:    r.Shell,
		Console:  r.Console,
		Log:      r.Log,
		Prompt:   r.Prompt,
		Spinner:  r.Spinner,
		Rollback: r.Rollback,
	}
}
