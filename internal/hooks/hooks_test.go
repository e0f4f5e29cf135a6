package hooks

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/shell"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

type recorder struct {
	ran  []string
	fail string
}

func (r *recorder) run(_ context.Context, _ string, argv []string) (string, string, error) {
	line := strings.Join(argv, " ")
	r.ran = append(r.ran, line)
	if r.fail != "" && strings.Contains(line, r.fail) {
		return "", "hook exploded", errors.New("exit status 2")
	}
	return "", "", nil
}

func newDispatcher(t *testing.T, hooks map[string]any, overrides map[string]any) (*Dispatcher, *recorder, *config.Config) {
	t.Helper()
	o := map[string]any{"hooks": hooks}
	for k, v := range overrides {
		o[k] = v
	}
	cfg, err := config.New(config.Params{
		Fs:        afero.NewMemMapFs(),
		Dir:       "/",
		Getenv:    func(string) string { return "" },
		Overrides: o,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	rec := &recorder{}
	exec := shell.New(cfg, nil, logr.Discard()).WithRunner(rec.run)
	return New(cfg, exec, nil), rec, cfg
}

type stagePlugin struct {
	*plugin.Base
	skip bool
}

func (s *stagePlugin) Release(context.Context) error {
	if s.skip {
		return plugin.ErrSkip
	}
	return nil
}

func newPlugin(ns string, skip bool) plugin.Plugin {
	return &stagePlugin{Base: plugin.NewBase(plugin.Params{Namespace: ns}), skip: skip}
}

func allHooks(namespaces ...string) map[string]any {
	h := map[string]any{
		"before:release": "echo before:release",
		"after:release":  "echo after:release",
	}
	for _, ns := range namespaces {
		h["before:"+ns+":release"] = "echo before:" + ns
		h["after:"+ns+":release"] = []any{"echo after:" + ns}
	}
	return h
}

func TestGlobalHooksBracketStage(t *testing.T) {
	d, rec, _ := newDispatcher(t, allHooks("a", "b", "c"), nil)
	ordering := []plugin.Plugin{newPlugin("a", false), newPlugin("b", false), newPlugin("c", false)}
	if err := d.RunStage(context.Background(), ordering, plugin.StageRelease, ""); err != nil {
		t.Fatalf("run stage: %v", err)
	}
	want := []string{
		"echo before:release",
		"echo before:a", "echo after:a",
		"echo before:b", "echo after:b",
		"echo before:c", "echo after:c",
		"echo after:release",
	}
	if !slices.Equal(rec.ran, want) {
		t.Fatalf("unexpected order:\n got %v\nwant %v", rec.ran, want)
	}
}

func TestSkipSuppressesAfterHooks(t *testing.T) {
	d, rec, _ := newDispatcher(t, allHooks("a", "b"), nil)
	ordering := []plugin.Plugin{newPlugin("a", false), newPlugin("b", true)}
	if err := d.RunStage(context.Background(), ordering, plugin.StageRelease, ""); err != nil {
		t.Fatalf("skip is not an error: %v", err)
	}
	want := []string{"echo before:release", "echo before:a", "echo after:a", "echo before:b"}
	if !slices.Equal(rec.ran, want) {
		t.Fatalf("unexpected order:\n got %v\nwant %v", rec.ran, want)
	}
}

func TestHookFailureAborts(t *testing.T) {
	d, rec, _ := newDispatcher(t, allHooks("a", "b"), nil)
	rec.fail = "before:b"
	ordering := []plugin.Plugin{newPlugin("a", false), newPlugin("b", false)}
	err := d.RunStage(context.Background(), ordering, plugin.StageRelease, "")
	if !errors.Is(err, exit.ErrHook) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if !strings.Contains(err.Error(), "hook exploded") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if slices.Contains(rec.ran, "echo after:release") {
		t.Fatalf("run must stop at the failing hook")
	}
}

func TestPluginErrorPropagatesWithoutAfterHooks(t *testing.T) {
	d, rec, _ := newDispatcher(t, allHooks("a"), nil)
	boom := errors.New("boom")
	p := newPlugin("a", false)
	err := d.RunLifecycle(context.Background(), []plugin.Plugin{p}, p, plugin.StageRelease, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected plugin error, got %v", err)
	}
	if slices.Contains(rec.ran, "echo after:a") {
		t.Fatalf("after hooks must not run after a failure")
	}
}

func TestScriptsRenderAgainstContext(t *testing.T) {
	d, rec, cfg := newDispatcher(t, map[string]any{"after:bump": "echo {{ .version }}"}, nil)
	cfg.Merge(map[string]any{"version": "1.3.0"})
	if err := d.Run(context.Background(), "after", "bump"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(rec.ran, []string{"echo 1.3.0"}) {
		t.Fatalf("unexpected scripts %v", rec.ran)
	}
}

func TestDryRunSkipsHookScripts(t *testing.T) {
	d, rec, _ := newDispatcher(t, map[string]any{"before": "make dist"}, map[string]any{"dry-run": true})
	if err := d.RunPhase(context.Background(), Before); err != nil {
		t.Fatalf("run phase: %v", err)
	}
	if len(rec.ran) != 0 {
		t.Fatalf("dry run must not execute hooks, ran %v", rec.ran)
	}
}

func TestObserverSeesEveryScript(t *testing.T) {
	d, _, _ := newDispatcher(t, map[string]any{"after": []any{"echo one", "echo two"}}, nil)
	var seen []string
	d.Observe(func(key, script string) { seen = append(seen, key+"="+script) })
	if err := d.RunPhase(context.Background(), After); err != nil {
		t.Fatalf("run phase: %v", err)
	}
	if !slices.Equal(seen, []string{"after=echo one", "after=echo two"}) {
		t.Fatalf("unexpected observations %v", seen)
	}
}

func TestMissingHookIsNoop(t *testing.T) {
	d, rec, _ := newDispatcher(t, nil, nil)
	if err := d.Run(context.Background(), "before", "init"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.ran) != 0 {
		t.Fatalf("nothing configured, ran %v", rec.ran)
	}
}
