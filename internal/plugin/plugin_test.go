package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
	"github.com/spf13/afero"
)

func newDeps(t *testing.T, overrides map[string]any) Deps {
	t.Helper()
	cfg, err := config.New(config.Params{
		Fs:        afero.NewMemMapFs(),
		Dir:       "/",
		Getenv:    func(string) string { return "" },
		Overrides: overrides,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return Deps{Config: cfg}
}

type fakePlugin struct {
	*Base
	name  string
	calls *[]string
}

func (f *fakePlugin) GetName(context.Context) (string, error) {
	*f.calls = append(*f.calls, f.Namespace())
	return f.name, nil
}

func fakeKind(name string, calls *[]string) Kind {
	return Kind{Name: name, New: func(p Params) (Plugin, error) {
		return &fakePlugin{Base: NewBase(p), calls: calls}, nil
	}}
}

func newFake(ns, answer string, calls *[]string) Plugin {
	return &fakePlugin{Base: NewBase(Params{Namespace: ns}), name: answer, calls: calls}
}

func getName(ctx context.Context, p Plugin) (string, error) { return p.GetName(ctx) }

func TestFirstAnswerStopsAtFirstAnswer(t *testing.T) {
	var calls []string
	plugins := []Plugin{newFake("a", "", &calls), newFake("b", "from-b", &calls), newFake("c", "from-c", &calls)}
	got, err := FirstAnswer(context.Background(), plugins, getName)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if got != "from-b" {
		t.Fatalf("expected from-b, got %q", got)
	}
	if !slices.Equal(calls, []string{"a", "b"}) {
		t.Fatalf("c must not be consulted, calls=%v", calls)
	}
}

func TestFirstAnswerNoAnswerAndError(t *testing.T) {
	var calls []string
	got, err := FirstAnswer(context.Background(), []Plugin{newFake("a", "", &calls)}, getName)
	if err != nil || got != "" {
		t.Fatalf("expected empty answer, got %q (%v)", got, err)
	}
	boom := errors.New("boom")
	_, err = FirstAnswer(context.Background(), []Plugin{newFake("a", "", &calls)}, func(context.Context, Plugin) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to abort, got %v", err)
	}
	latest, err := FirstAnswer(context.Background(), []Plugin{newFake("a", "", &calls)}, func(ctx context.Context, p Plugin) (*LatestVersion, error) {
		return p.GetLatestVersion(ctx)
	})
	if err != nil || latest != nil {
		t.Fatalf("base plugin should not answer latest version, got %+v", latest)
	}
}

func TestOrder(t *testing.T) {
	var calls []string
	internal := []Plugin{newFake("git", "", &calls)}
	external := []Plugin{newFake("ext", "", &calls)}
	if got := Order(StageInit, internal, external); got[0].Namespace() != "ext" {
		t.Fatalf("externals run first during init")
	}
	if got := Order(StageRelease, internal, external); got[0].Namespace() != "git" {
		t.Fatalf("internals run first during release")
	}
}

func TestCallDispatchesStages(t *testing.T) {
	var calls []string
	p := newFake("a", "", &calls)
	for _, stage := range []string{StageInit, StageBeforeBump, StageBump, StageBeforeRelease, StageRelease, StageAfterRelease} {
		if err := Call(context.Background(), p, stage, "1.0.0"); err != nil {
			t.Fatalf("stage %s: %v", stage, err)
		}
	}
	if err := Call(context.Background(), p, "publish", ""); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

func TestParseEntries(t *testing.T) {
	list, err := ParseEntries([]any{
		"./plugins/notify.go",
		map[string]any{"name": "bumper", "namespace": "bump", "options": map[string]any{"file": "VERSION"}},
	})
	if err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "./plugins/notify.go" || list[1].Namespace != "bump" {
		t.Fatalf("unexpected entries %+v", list)
	}

	byName, err := ParseEntries(map[string]any{
		"zeta":  map[string]any{"x": 1},
		"alpha": []any{"alias", map[string]any{"y": 2}},
	})
	if err != nil {
		t.Fatalf("parse map: %v", err)
	}
	if byName[0].Name != "alpha" || byName[0].Namespace != "alias" || byName[1].Name != "zeta" {
		t.Fatalf("unexpected entries %+v", byName)
	}

	if _, err := ParseEntries([]any{map[string]any{"options": 1}}); !errors.Is(err, exit.ErrConfig) {
		t.Fatalf("expected config error for entry without name, got %v", err)
	}
	if _, err := ParseEntries("nope"); !errors.Is(err, exit.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNamespaceFor(t *testing.T) {
	cases := map[string]string{
		"./plugins/notify.go": "notify",
		"../hooks/slack":      "slack",
		"bumper":              "bumper",
		"changelog.go":        "changelog",
	}
	for in, want := range cases {
		if got := NamespaceFor(in); got != want {
			t.Fatalf("NamespaceFor(%q)=%q want %q", in, got, want)
		}
	}
}

func internalKinds(calls *[]string) []Kind {
	return []Kind{fakeKind("environment", calls), fakeKind("git", calls), fakeKind("version", calls)}
}

func namespaces(ps []Plugin) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Namespace())
	}
	return out
}

func TestResolveOrderAndDisable(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	replacer := fakeKind("replacer", &calls)
	replacer.DisablePlugin = func(context.Context, any) ([]string, error) { return []string{"git", "unknown"}, nil }
	if err := reg.Register(replacer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(replacer); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	deps := newDeps(t, map[string]any{
		"plugins": []any{map[string]any{"name": "replacer", "options": map[string]any{"flag": true}}},
	})
	internal, external, err := NewResolver(internalKinds(&calls), reg).Resolve(context.Background(), deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := namespaces(external); !slices.Equal(got, []string{"replacer"}) {
		t.Fatalf("unexpected externals %v", got)
	}
	if got := namespaces(internal); !slices.Equal(got, []string{"environment", "version"}) {
		t.Fatalf("unexpected internals %v", got)
	}
	if !deps.Config.Bool("replacer.flag") {
		t.Fatalf("external options should be merged under the namespace")
	}
	if got := external[0].(*fakePlugin).Options()["flag"]; got != true {
		t.Fatalf("plugin options not visible: %v", got)
	}
}

func TestResolveSkipsDisabledInternal(t *testing.T) {
	var calls []string
	deps := newDeps(t, map[string]any{"git": false})
	internal, _, err := NewResolver(internalKinds(&calls), NewRegistry()).Resolve(context.Background(), deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := namespaces(internal); !slices.Equal(got, []string{"environment", "version"}) {
		t.Fatalf("unexpected internals %v", got)
	}
}

func TestResolveIsEnabledErrorPropagates(t *testing.T) {
	var calls []string
	kinds := internalKinds(&calls)
	boom := errors.New("cannot decide")
	kinds[1].IsEnabled = func(context.Context, any) (bool, error) { return false, boom }
	_, _, err := NewResolver(kinds, NewRegistry()).Resolve(context.Background(), newDeps(t, nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected IsEnabled error, got %v", err)
	}
}

func TestResolveDisablePluginErrorFails(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	broken := HandlerKind("broken", func(_ context.Context, method string, _ map[string]any) (map[string]any, error) {
		if method == "disablePlugin" {
			return nil, errors.New("handler crashed")
		}
		return nil, nil
	})
	if err := reg.Register(broken); err != nil {
		t.Fatalf("register: %v", err)
	}
	deps := newDeps(t, map[string]any{"plugins": []any{"broken"}})
	_, _, err := NewResolver(internalKinds(&calls), reg).Resolve(context.Background(), deps)
	if !errors.Is(err, exit.ErrPluginLoad) || !strings.Contains(err.Error(), "handler crashed") {
		t.Fatalf("expected the disablePlugin failure, got %v", err)
	}

	reg = NewRegistry()
	refusing := HandlerKind("refusing", func(_ context.Context, method string, _ map[string]any) (map[string]any, error) {
		if method == "disablePlugin" {
			return map[string]any{"error": "bad options"}, nil
		}
		return nil, nil
	})
	if err := reg.Register(refusing); err != nil {
		t.Fatalf("register: %v", err)
	}
	deps = newDeps(t, map[string]any{"plugins": []any{"refusing"}})
	if _, _, err := NewResolver(internalKinds(&calls), reg).Resolve(context.Background(), deps); err == nil || !strings.Contains(err.Error(), "bad options") {
		t.Fatalf("expected the reported error, got %v", err)
	}
}

func TestResolveUnknownPluginFails(t *testing.T) {
	deps := newDeps(t, map[string]any{"plugins": []any{"does-not-exist"}, "working_path": t.TempDir()})
	_, _, err := NewResolver(nil, NewRegistry()).Resolve(context.Background(), deps)
	if !errors.Is(err, exit.ErrPluginLoad) {
		t.Fatalf("expected plugin load error, got %v", err)
	}
	if exit.Code(err) != 1 {
		t.Fatalf("load errors exit with 1")
	}

	var calls []string
	reg := NewRegistry()
	for _, name := range []string{"slack", "changelog"} {
		if err := reg.Register(fakeKind(name, &calls)); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	_, err = NewResolver(nil, reg).Load(context.Background(), "does-not-exist", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "(registered: changelog, slack)") {
		t.Fatalf("expected the registered kinds in the error, got %v", err)
	}
}

const scriptPlugin = `package main

func Handle(method string, request map[string]any) (map[string]any, error) {
	switch method {
	case "init":
		ns, _ := request["namespace"].(string)
		return map[string]any{"context": map[string]any{"scriptSeen": ns}}, nil
	case "getName":
		return map[string]any{"result": "from-script"}, nil
	case "release":
		return map[string]any{"skip": true}, nil
	}
	return nil, nil
}
`

func TestScriptPlugin(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "plugins"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugins", "notify.go"), []byte(scriptPlugin), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	deps := newDeps(t, map[string]any{"working_path": dir, "plugins": []any{"./plugins/notify.go"}})
	_, external, err := NewResolver(nil, NewRegistry()).Resolve(context.Background(), deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(external) != 1 || external[0].Namespace() != "notify" {
		t.Fatalf("unexpected externals %v", namespaces(external))
	}
	p := external[0]
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := deps.Config.String("scriptSeen"); got != "notify" {
		t.Fatalf("script context not merged, got %q", got)
	}
	if name, err := p.GetName(ctx); err != nil || name != "from-script" {
		t.Fatalf("unexpected name %q (%v)", name, err)
	}
	if err := p.Release(ctx); !errors.Is(err, ErrSkip) {
		t.Fatalf("expected skip, got %v", err)
	}
	if err := p.AfterRelease(ctx); err != nil {
		t.Fatalf("unanswered methods are no-ops: %v", err)
	}
}

func TestScriptPluginWithoutHandle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	_, err := NewResolver(nil, NewRegistry()).Load(context.Background(), "broken.go", dir)
	if !errors.Is(err, exit.ErrPluginLoad) {
		t.Fatalf("expected plugin load error, got %v", err)
	}
}

const execPlugin = `#!/bin/sh
cat >/dev/null
case "$1" in
  getName) echo '{"result":"from-exec"}' ;;
  getLatestVersion) echo '{"result":{"version":"3.1.0","taggerName":"ci"}}' ;;
  isEnabled) echo '{"enabled":true}' ;;
  bump) echo '{"context":{"bumped":true}}' ;;
  release) echo 'kaput' >&2; exit 3 ;;
esac
`

func TestExecPlugin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugin")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stamp"), []byte(execPlugin), 0o755); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	deps := newDeps(t, map[string]any{"working_path": dir, "plugins": []any{"./stamp"}})
	_, external, err := NewResolver(nil, NewRegistry()).Resolve(context.Background(), deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(external) != 1 || external[0].Namespace() != "stamp" {
		t.Fatalf("unexpected externals %v", namespaces(external))
	}
	p := external[0]
	ctx := context.Background()
	if name, _ := p.GetName(ctx); name != "from-exec" {
		t.Fatalf("unexpected name %q", name)
	}
	latest, err := p.GetLatestVersion(ctx)
	if err != nil || latest == nil || latest.Version != "3.1.0" || latest.TaggerName != "ci" {
		t.Fatalf("unexpected latest %+v (%v)", latest, err)
	}
	if err := p.Bump(ctx, "3.2.0"); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if !deps.Config.Bool("bumped") {
		t.Fatalf("exec context not merged")
	}
	err = p.Release(ctx)
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestBaseContextAndOptions(t *testing.T) {
	deps := newDeps(t, map[string]any{"notify": map[string]any{"channel": "#release", "mention": false}})
	b := NewBase(Params{Namespace: "notify", Options: map[string]any{"mention": true}, Deps: deps})
	if b.Option("channel") != "#release" || b.Option("mention") != true {
		t.Fatalf("unexpected options %v", b.Options())
	}
	b.SetContext(map[string]any{"version": "1.0.0"})
	if b.GetContext("version") != "1.0.0" {
		t.Fatalf("plugin context not stored")
	}
	if deps.Config.Get("version") != nil {
		t.Fatalf("plugin context must not leak into the shared context")
	}
}
