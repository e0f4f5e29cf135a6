package plugin

import (
	"context"
	"sync"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/logging"
	"github.com/example/releaser/internal/prompt"
	"github.com/example/releaser/internal/rollback"
	"github.com/example/releaser/internal/semver"
	"github.com/example/releaser/internal/shell"
	"github.com/example/releaser/internal/ui"
	"github.com/go-logr/logr"
)

// Deps are the run-wide collaborators handed to every plugin.
type Deps struct {
	Config   *config.Config
	Shell    *shell.Executor
	Console  *logging.Console
	Log      logr.Logger
	Prompt   prompt.Prompter
	Spinner  *ui.Spinner
	Rollback *rollback.Scope
}

// Params are passed to Kind.New.
type Params struct {
	Namespace string
	// Options override the namespace slice of the shared context.
	Options map[string]any
	Deps
}

// Base implements every Plugin method as a no-op and carries the helpers
// plugins share.
type Base struct {
	namespace string
	overrides map[string]any
	deps      Deps

	mu    sync.Mutex
	local map[string]any
}

// NewBase returns the shared plugin state for p.
func NewBase(p Params) *Base {
	if p.Log.GetSink() == nil {
		p.Log = logr.Discard()
	}
	return &Base{
		namespace: p.Namespace,
		overrides: p.Options,
		deps:      p.Deps,
		local:     map[string]any{},
	}
}

func (b *Base) Namespace() string { return b.namespace }

func (b *Base) Config() *config.Config    { return b.deps.Config }
func (b *Base) Console() *logging.Console { return b.deps.Console }
func (b *Base) Prompt() prompt.Prompter   { return b.deps.Prompt }
func (b *Base) Spinner() *ui.Spinner      { return b.deps.Spinner }
func (b *Base) Rollback() *rollback.Scope { return b.deps.Rollback }
func (b *Base) Shell() *shell.Executor    { return b.deps.Shell }
func (b *Base) Log() logr.Logger          { return b.deps.Log.WithValues("plugin", b.namespace) }

// Options returns the plugin's namespace slice of the context merged with
// the constructor overrides.
func (b *Base) Options() map[string]any {
	opts := map[string]any{}
	if b.deps.Config != nil {
		opts = b.deps.Config.Map(b.namespace)
	}
	return config.DeepMerge(opts, b.overrides)
}

// Option returns a dotted path inside Options.
func (b *Base) Option(path string) any {
	v, _ := config.Lookup(b.Options(), path)
	return v
}

// Exec runs a command through the shared executor.
func (b *Base) Exec(ctx context.Context, command any, opts shell.Options) (string, error) {
	return b.deps.Shell.Exec(ctx, command, opts)
}

// SetContext merges values into the plugin-local context.
func (b *Base) SetContext(values map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	config.DeepMerge(b.local, values)
}

// GetContext returns a value from the plugin-local context, or the whole
// context for an empty path.
func (b *Base) GetContext(path string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := config.Lookup(b.local, path)
	return v
}

func (b *Base) Init(context.Context) error              { return nil }
func (b *Base) GetName(context.Context) (string, error) { return "", nil }
func (b *Base) BeforeBump(context.Context) error        { return nil }
func (b *Base) Bump(context.Context, string) error      { return nil }
func (b *Base) BeforeRelease(context.Context) error     { return nil }
func (b *Base) Release(context.Context) error           { return nil }
func (b *Base) AfterRelease(context.Context) error      { return nil }

func (b *Base) GetLatestVersion(context.Context) (*LatestVersion, error) { return nil, nil }

func (b *Base) GetIncrement(context.Context, IncrementBase) (semver.Increment, error) {
	return semver.Increment{}, nil
}

func (b *Base) GetIncrementedVersionCI(context.Context, IncrementBase) (string, error) {
	return "", nil
}

func (b *Base) GetIncrementedVersion(context.Context, IncrementBase) (string, error) {
	return "", nil
}
