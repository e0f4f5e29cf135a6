// Package environment selects the deployment environment of a release. Each
// environment names the tag pattern its versions live under.
package environment

import (
	"context"
	"regexp"
	"strings"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/prompt"
	"github.com/example/releaser/internal/shell"
	"github.com/spf13/cast"
)

// Name is the namespace of the environment plugin.
const Name = "environment"

// Environment is one entry of the environments configuration.
type Environment struct {
	Name    string         `mapstructure:"name"`
	Alias   string         `mapstructure:"alias"`
	Enabled bool           `mapstructure:"enabled"`
	Regex   string         `mapstructure:"regex"`
	Options map[string]any `mapstructure:"options"`
}

// Label is how the environment is offered in the selection prompt.
func (e Environment) Label() string {
	return e.Name + " #" + e.Regex
}

// Kind returns the internal environment plugin kind. The plugin cannot be
// switched off: its configuration key holds the selected alias.
func Kind() plugin.Kind {
	return plugin.Kind{
		Name: Name,
		IsEnabled: func(context.Context, any) (bool, error) {
			return true, nil
		},
		New: func(p plugin.Params) (plugin.Plugin, error) {
			return New(p), nil
		},
	}
}

// Plugin selects an environment during init and publishes its tag pattern.
type Plugin struct {
	*plugin.Base
}

// New returns the environment plugin.
func New(p plugin.Params) *Plugin {
	return &Plugin{Base: plugin.NewBase(p)}
}

// Environments decodes the environments configuration.
func Environments(cfg *config.Config) ([]Environment, error) {
	var envs []Environment
	if err := cfg.Decode("environments", &envs); err != nil {
		return nil, exit.Wrap(exit.ErrConfig, "environments: %v", err)
	}
	return envs, nil
}

func (p *Plugin) Init(ctx context.Context) error {
	cfg := p.Config()
	envs, err := Environments(cfg)
	if err != nil {
		return err
	}
	var enabled []Environment
	for _, e := range envs {
		if e.Enabled && e.Regex != "" {
			enabled = append(enabled, e)
		}
	}
	if len(enabled) == 0 {
		return exit.Wrap(exit.ErrConfig, "You need to configure environments in %s.", configName(cfg))
	}

	selected, err := p.pick(ctx, envs, enabled, cfg.String("environment"))
	if err != nil {
		return err
	}
	match, err := TagMatch(selected.Regex)
	if err != nil {
		return err
	}
	options := selected.Options
	if options == nil {
		options = map[string]any{}
	}
	cfg.Merge(map[string]any{
		"tagMatch":        match,
		"tagRegex":        selected.Regex,
		"tagOptions":      options,
		"environmentName": selected.Name,
	})
	p.Log().V(1).Info("environment selected", "name", selected.Name, "tagMatch", match)
	return nil
}

func (p *Plugin) pick(ctx context.Context, all, enabled []Environment, alias string) (Environment, error) {
	if len(all) == 1 {
		return all[0], nil
	}
	if alias != "" {
		for _, e := range enabled {
			if e.Alias == alias {
				return e, nil
			}
		}
	}
	if p.Config().IsCI() || p.Prompt() == nil {
		if alias != "" {
			return Environment{}, exit.Wrap(exit.ErrConfig, "unknown environment %q", alias)
		}
		return Environment{}, exit.Wrap(exit.ErrConfig, "select an environment with --environment <alias>")
	}
	choices := make([]prompt.Choice, 0, len(enabled))
	for _, e := range enabled {
		choices = append(choices, prompt.Choice{Label: e.Label(), Value: e})
	}
	choice, err := p.Prompt().Select(ctx, "Select environment:", choices)
	if err != nil {
		return Environment{}, err
	}
	return choice.Value.(Environment), nil
}

func configName(cfg *config.Config) string {
	if f := cfg.File(); f != "" {
		return f
	}
	return "./.releaser.yaml"
}

// GetLatestVersion checks the selected environment and leaves the answer to
// the git plugin.
func (p *Plugin) GetLatestVersion(context.Context) (*plugin.LatestVersion, error) {
	cfg := p.Config()
	if cfg.String("tagMatch") == "" {
		return nil, exit.Wrap(exit.ErrConfig, "The environment is invalid.")
	}
	if _, err := TagMatch(cfg.String("tagRegex")); err != nil {
		return nil, err
	}
	return nil, nil
}

// AfterRelease prints the pipeline links of the environment, when configured.
func (p *Plugin) AfterRelease(context.Context) error {
	cfg := p.Config()
	opts := cfg.Map("tagOptions")
	builder := cast.ToString(opts["builder_pipe_num"])
	deploy := cast.ToString(opts["deploy_pipe_num"])
	if builder == "" && deploy == "" {
		return nil
	}
	console := p.Console()
	console.Info()
	for _, link := range []struct{ tmpl, num string }{
		{cfg.String("pipe_builder_url_template"), builder},
		{cfg.String("pipe_deploy_url_template"), deploy},
	} {
		if link.tmpl == "" || link.num == "" {
			continue
		}
		url, err := shell.Render(link.tmpl, map[string]any{"pipe_num": link.num})
		if err != nil {
			return err
		}
		console.Info("🔗 " + url)
	}
	return nil
}

// TagMatch validates an environment regex and derives the git glob matching
// its tags: the capture group becomes "*" ("v(\d+\.\d+\.\d+)" gives "v*").
// The regex must compile and hold exactly one capture group.
func TagMatch(regex string) (string, error) {
	re, err := regexp.Compile(regex)
	if err != nil {
		return "", exit.Wrap(exit.ErrConfig, "The environment is invalid: %v", err)
	}
	if re.NumSubexp() != 1 {
		return "", exit.Wrap(exit.ErrConfig, "The environment is invalid: %q must contain exactly one capture group", regex)
	}
	start, end := captureSpan(regex)
	if start < 0 {
		return "", exit.Wrap(exit.ErrConfig, "The environment is invalid: %q", regex)
	}
	glob := regex[:start] + "*" + regex[end:]
	glob = strings.TrimSuffix(strings.TrimPrefix(glob, "^"), "$")
	return unescape(glob), nil
}

// InitialVersion is the version assumed before the first release: the
// regex with its capture group replaced by 0.0.0 ("v(\d+\.\d+\.\d+)" gives
// "v0.0.0"). Without a usable regex it is "0.0.0".
func InitialVersion(regex string) string {
	start, end := captureSpan(regex)
	if start < 0 {
		return "0.0.0"
	}
	initial := regex[:start] + "0.0.0" + regex[end:]
	return unescape(strings.TrimSuffix(strings.TrimPrefix(initial, "^"), "$"))
}

// captureSpan locates the first capturing group of regex, returning the
// offsets of its opening and one past its closing parenthesis.
func captureSpan(regex string) (int, int) {
	start, depth := -1, 0
	inClass := false
	for i := 0; i < len(regex); i++ {
		switch c := regex[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			if start < 0 {
				if strings.HasPrefix(regex[i:], "(?") && !strings.HasPrefix(regex[i:], "(?P<") {
					continue
				}
				start = i
			}
			if start >= 0 {
				depth++
			}
		case c == ')' && start >= 0:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
