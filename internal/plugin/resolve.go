package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/example/releaser/internal/appconfig"
	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
)

// Entry is one configured external plugin.
type Entry struct {
	Name      string `mapstructure:"name"`
	Namespace string `mapstructure:"namespace"`
	Options   any    `mapstructure:"options"`
}

// ParseEntries reads the plugins configuration. The list form keeps its
// order; the map form ({name: options} or {name: [namespace, options]}) is
// sorted by name.
func ParseEntries(v any) ([]Entry, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		entries := make([]Entry, 0, len(val))
		for i, item := range val {
			if name, ok := item.(string); ok {
				entries = append(entries, Entry{Name: name})
				continue
			}
			var e Entry
			if err := config.DecodeValue(item, &e); err != nil {
				return nil, exit.Wrap(exit.ErrConfig, "plugins[%d]: %v", i, err)
			}
			if strings.TrimSpace(e.Name) == "" {
				return nil, exit.Wrap(exit.ErrConfig, "plugins[%d]: missing name", i)
			}
			entries = append(entries, e)
		}
		return entries, nil
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]Entry, 0, len(names))
		for _, name := range names {
			e := Entry{Name: name, Options: val[name]}
			if pair, ok := val[name].([]any); ok && len(pair) == 2 {
				if ns, ok := pair[0].(string); ok {
					e.Namespace, e.Options = ns, pair[1]
				}
			}
			entries = append(entries, e)
		}
		return entries, nil
	}
	return nil, exit.Wrap(exit.ErrConfig, "plugins must be a list or a mapping, got %T", v)
}

// NamespaceFor derives the default namespace of a plugin module name: paths
// use their file name without extension.
func NamespaceFor(name string) string {
	if strings.HasPrefix(name, ".") || strings.ContainsRune(name, filepath.Separator) || filepath.Ext(name) == ".go" {
		base := filepath.Base(name)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return name
}

// Loader turns a configured plugin name into a Kind. ok is false when the
// loader does not recognize the name.
type Loader interface {
	Load(ctx context.Context, name, dir string) (kind Kind, ok bool, err error)
}

// Resolver builds the plugin lists for a run.
type Resolver struct {
	// Internal kinds in their fixed order.
	Internal []Kind
	// Loaders are tried in order for each external plugin.
	Loaders []Loader
}

// NewResolver returns a resolver that loads externals from reg, then from Go
// script files, then from executables.
func NewResolver(internal []Kind, reg *Registry) *Resolver {
	if reg == nil {
		reg = defaultRegistry
	}
	return &Resolver{
		Internal: internal,
		Loaders:  []Loader{RegistryLoader{Registry: reg}, ScriptLoader{}, ExecLoader{}},
	}
}

// Load resolves name through the loader chain.
func (r *Resolver) Load(ctx context.Context, name, dir string) (Kind, error) {
	var errs []string
	for _, l := range r.Loaders {
		kind, ok, err := l.Load(ctx, name, dir)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if ok {
			return kind, nil
		}
	}
	if len(errs) > 0 {
		return Kind{}, exit.Wrap(exit.ErrPluginLoad, "cannot load plugin %q: %s", name, strings.Join(errs, "; "))
	}
	var known []string
	for _, l := range r.Loaders {
		if rl, ok := l.(RegistryLoader); ok && rl.Registry != nil {
			known = append(known, rl.Registry.Names()...)
		}
	}
	if len(known) > 0 {
		return Kind{}, exit.Wrap(exit.ErrPluginLoad, "cannot find plugin %q (registered: %s)", name, strings.Join(known, ", "))
	}
	return Kind{}, exit.Wrap(exit.ErrPluginLoad, "cannot find plugin %q", name)
}

// Resolve loads the configured external plugins and the enabled internal
// ones. Each external's options are merged into the context under its
// namespace before it is asked whether it is enabled.
func (r *Resolver) Resolve(ctx context.Context, deps Deps) (internal, external []Plugin, err error) {
	cfg := deps.Config
	entries, err := ParseEntries(cfg.Get("plugins"))
	if err != nil {
		return nil, nil, err
	}
	dir := cfg.String("working_path")
	internalNames := make([]string, 0, len(r.Internal))
	for _, k := range r.Internal {
		internalNames = append(internalNames, k.Name)
	}

	var disabled []string
	for _, e := range entries {
		kind, err := r.Load(ctx, e.Name, dir)
		if err != nil {
			return nil, nil, err
		}
		ns := e.Namespace
		if ns == "" {
			ns = NamespaceFor(e.Name)
		}
		if e.Options != nil {
			cfg.Merge(map[string]any{ns: e.Options})
		}
		enabled, err := kind.enabled(ctx, e.Options)
		if err != nil {
			return nil, nil, fmt.Errorf("plugin %s: %w", ns, err)
		}
		if !enabled {
			deps.Log.V(1).Info("plugin disabled", "plugin", ns)
			continue
		}
		opts, _ := e.Options.(map[string]any)
		p, err := kind.New(Params{Namespace: ns, Options: opts, Deps: deps})
		if err != nil {
			return nil, nil, exit.Wrap(exit.ErrPluginLoad, "plugin %s: %v", ns, err)
		}
		deps.Log.V(1).Info("plugin loaded", "plugin", ns, "module", e.Name)
		external = append(external, p)
		replaced, err := kind.disabled(ctx, e.Options)
		if err != nil {
			return nil, nil, exit.Wrap(exit.ErrPluginLoad, "plugin %s: %v", ns, err)
		}
		for _, name := range replaced {
			if slices.Contains(internalNames, name) {
				disabled = append(disabled, name)
			}
		}
	}

	for _, kind := range r.Internal {
		if slices.Contains(disabled, kind.Name) {
			deps.Log.V(1).Info("plugin replaced", "plugin", kind.Name)
			continue
		}
		enabled, err := kind.enabled(ctx, cfg.Get(kind.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("plugin %s: %w", kind.Name, err)
		}
		if !enabled {
			continue
		}
		p, err := kind.New(Params{Namespace: kind.Name, Deps: deps})
		if err != nil {
			return nil, nil, fmt.Errorf("plugin %s: %w", kind.Name, err)
		}
		internal = append(internal, p)
	}
	return internal, external, nil
}

// RegistryLoader resolves names registered in a Registry.
type RegistryLoader struct {
	Registry *Registry
}

// Load implements Loader.
func (l RegistryLoader) Load(_ context.Context, name, _ string) (Kind, bool, error) {
	if l.Registry == nil {
		return Kind{}, false, nil
	}
	k, ok := l.Registry.Lookup(name)
	return k, ok, nil
}

func pluginPath(name, dir string) string {
	path, err := appconfig.ExpandPath(name, dir)
	if err != nil {
		return name
	}
	return path
}
