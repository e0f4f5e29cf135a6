package environment

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/logging"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/prompt"
	"github.com/fatih/color"
	"github.com/spf13/afero"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

var (
	prod    = map[string]any{"name": "production", "alias": "prod", "enabled": true, "regex": `v(\d+\.\d+\.\d+)`}
	staging = map[string]any{"name": "staging", "alias": "stg", "enabled": true, "regex": `staging-v(\d+\.\d+\.\d+)`,
		"options": map[string]any{"builder_pipe_num": 12, "deploy_pipe_num": "34"}}
	legacy = map[string]any{"name": "legacy", "alias": "old", "enabled": false, "regex": `old-(\d+)`}
)

func newPlugin(t *testing.T, overrides map[string]any, p prompt.Prompter) (*Plugin, *config.Config, *bytes.Buffer) {
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
	var buf bytes.Buffer
	console := &logging.Console{Out: &buf, Err: &buf}
	return New(plugin.Params{Namespace: Name, Deps: plugin.Deps{Config: cfg, Console: console, Prompt: p}}), cfg, &buf
}

func TestSingleEnvironmentIsSelected(t *testing.T) {
	p, cfg, _ := newPlugin(t, map[string]any{"environments": []any{prod}, "ci": true}, nil)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if cfg.String("tagMatch") != "v*" || cfg.String("environmentName") != "production" {
		t.Fatalf("unexpected context %v", cfg.Context())
	}
	if cfg.String("tagRegex") != `v(\d+\.\d+\.\d+)` {
		t.Fatalf("tagRegex not recorded")
	}
}

func TestAliasSelectsEnvironment(t *testing.T) {
	p, cfg, _ := newPlugin(t, map[string]any{"environments": []any{prod, staging}, "environment": "stg", "ci": true}, nil)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if cfg.String("tagMatch") != "staging-v*" {
		t.Fatalf("unexpected tagMatch %q", cfg.String("tagMatch"))
	}
	if cfg.String("tagOptions.deploy_pipe_num") != "34" {
		t.Fatalf("tagOptions not recorded: %v", cfg.Get("tagOptions"))
	}
}

func TestPromptOffersEnabledEnvironments(t *testing.T) {
	script := &prompt.Scripted{Selects: []int{1}}
	p, cfg, _ := newPlugin(t, map[string]any{"environments": []any{prod, legacy, staging}}, script)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if cfg.String("environmentName") != "staging" {
		t.Fatalf("expected staging (legacy is disabled), got %q", cfg.String("environmentName"))
	}
	if len(script.Asked) != 1 || script.Asked[0] != "Select environment:" {
		t.Fatalf("unexpected prompts %v", script.Asked)
	}
}

func TestAliasIgnoresDisabledEnvironments(t *testing.T) {
	p, _, _ := newPlugin(t, map[string]any{"environments": []any{prod, legacy}, "environment": "old", "ci": true}, nil)
	err := p.Init(context.Background())
	if !errors.Is(err, exit.ErrConfig) || !strings.Contains(err.Error(), `unknown environment "old"`) {
		t.Fatalf("a disabled environment must not be selectable by alias, got %v", err)
	}

	script := &prompt.Scripted{Selects: []int{0}}
	p, cfg, _ := newPlugin(t, map[string]any{"environments": []any{prod, legacy, staging}, "environment": "old"}, script)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if cfg.String("environmentName") != "production" || len(script.Asked) != 1 {
		t.Fatalf("expected a prompt among enabled environments, got %q after %v", cfg.String("environmentName"), script.Asked)
	}
}

func TestCIWithoutAliasFails(t *testing.T) {
	p, _, _ := newPlugin(t, map[string]any{"environments": []any{prod, staging}, "ci": true}, &prompt.Scripted{})
	if err := p.Init(context.Background()); !errors.Is(err, exit.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNoEnabledEnvironmentFails(t *testing.T) {
	p, _, _ := newPlugin(t, map[string]any{"environments": []any{legacy}}, nil)
	err := p.Init(context.Background())
	if !errors.Is(err, exit.ErrConfig) || !strings.Contains(err.Error(), "You need to configure environments") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestInvalidRegexFails(t *testing.T) {
	twoGroups := map[string]any{"name": "x", "enabled": true, "regex": `(\d+)-(\d+)`}
	p, _, _ := newPlugin(t, map[string]any{"environments": []any{twoGroups}}, nil)
	if err := p.Init(context.Background()); !errors.Is(err, exit.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestTagMatch(t *testing.T) {
	cases := map[string]string{
		`v(\d+\.\d+\.\d+)`:          "v*",
		`staging-v(\d+\.\d+\.\d+)`:  "staging-v*",
		`^release-(\d+\.\d+\.\d+)$`: "release-*",
		`rel/(\d+\.\d+\.\d+)`:       "rel/*",
	}
	for regex, want := range cases {
		got, err := TagMatch(regex)
		if err != nil {
			t.Fatalf("TagMatch(%q): %v", regex, err)
		}
		if got != want {
			t.Fatalf("TagMatch(%q)=%q want %q", regex, got, want)
		}
	}
	for _, bad := range []string{`v\d+`, `(a)(b)`, `v(`} {
		if _, err := TagMatch(bad); !errors.Is(err, exit.ErrConfig) {
			t.Fatalf("TagMatch(%q) should fail, got %v", bad, err)
		}
	}
}

func TestGetLatestVersionValidates(t *testing.T) {
	p, cfg, _ := newPlugin(t, nil, nil)
	if _, err := p.GetLatestVersion(context.Background()); !errors.Is(err, exit.ErrConfig) {
		t.Fatalf("expected invalid environment, got %v", err)
	}
	cfg.Merge(map[string]any{"tagMatch": "v*", "tagRegex": `v(\d+\.\d+\.\d+)`})
	latest, err := p.GetLatestVersion(context.Background())
	if err != nil || latest != nil {
		t.Fatalf("environment never answers the latest version, got %+v (%v)", latest, err)
	}
}

func TestAfterReleasePrintsPipelineLinks(t *testing.T) {
	p, _, buf := newPlugin(t, map[string]any{
		"environments":              []any{staging},
		"pipe_builder_url_template": "https://ci.example.com/pipelines/{{ .pipe_num }}",
		"pipe_deploy_url_template":  "https://cd.example.com/runs/{{ .pipe_num }}",
	}, nil)
	ctx := context.Background()
	if err := p.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.AfterRelease(ctx); err != nil {
		t.Fatalf("after release: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "https://ci.example.com/pipelines/12") || !strings.Contains(out, "https://cd.example.com/runs/34") {
		t.Fatalf("missing links in %q", out)
	}
}

func TestInitialVersion(t *testing.T) {
	cases := map[string]string{
		`v(\d+\.\d+\.\d+)`:         "v0.0.0",
		`staging-v(\d+\.\d+\.\d+)`: "staging-v0.0.0",
		"":                         "0.0.0",
	}
	for regex, want := range cases {
		if got := InitialVersion(regex); got != want {
			t.Fatalf("InitialVersion(%q)=%q want %q", regex, got, want)
		}
	}
}
