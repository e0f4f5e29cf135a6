// Package version resolves the next release version from the latest version
// and the requested increment.
package version

import (
	"context"
	"fmt"
	"regexp"

	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/prompt"
	"github.com/example/releaser/internal/semver"
)

// Name is the namespace of the version plugin.
const Name = "version"

const otherChoice = "other"

// Kind returns the plugin kind registered as the internal version plugin.
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

// Plugin answers the increment and version queries of the cascade.
type Plugin struct {
	*plugin.Base
}

// New returns the version plugin.
func New(p plugin.Params) *Plugin {
	return &Plugin{Base: plugin.NewBase(p)}
}

func (p *Plugin) GetIncrement(_ context.Context, base plugin.IncrementBase) (semver.Increment, error) {
	return base.Increment, nil
}

func (p *Plugin) GetIncrementedVersionCI(_ context.Context, base plugin.IncrementBase) (string, error) {
	return p.Resolve(base), nil
}

// GetIncrementedVersion resolves like the CI path and, when that yields
// nothing in an interactive run, asks for an increment.
func (p *Plugin) GetIncrementedVersion(ctx context.Context, base plugin.IncrementBase) (string, error) {
	if v := p.Resolve(base); v != "" {
		return v, nil
	}
	if p.Config().IsCI() || p.Prompt() == nil {
		return "", nil
	}
	return p.ask(ctx, base)
}

// Resolve applies the increment rules, first match wins:
//
//  1. increment disabled: the latest version
//  2. a valid version not lower than the latest: used verbatim
//  3. CI without an increment: a patch bump
//  4. a keyword: the keyword applied to the latest version
//  5. anything coercible into a version: the coerced version, with a warning
//
// Otherwise the result is empty.
func (p *Plugin) Resolve(base plugin.IncrementBase) string {
	latest := base.LatestVersion
	inc := base.Increment
	if inc.Disabled {
		return latest
	}
	valid := semver.Valid(inc.Value)
	if valid && semver.GTE(inc.Value, latest) {
		return inc.Value
	}
	if p.Config().IsCI() && inc.Value == "" {
		return semver.Inc(latest, semver.Patch)
	}
	if semver.IsKeyword(inc.Value) {
		return semver.Inc(latest, inc.Value)
	}
	if !valid {
		if coerced, ok := semver.Coerce(inc.Value); ok {
			p.Console().Warn(fmt.Sprintf("Coerced invalid semver version %q into %q.", inc.Value, coerced))
			return coerced
		}
	}
	return ""
}

// Choices lists the increment keywords, each annotated with the version it
// produces from latest, followed by a free-text entry.
func Choices(latest string) []prompt.Choice {
	choices := make([]prompt.Choice, 0, len(semver.Keywords)+1)
	for _, kw := range semver.Keywords {
		choices = append(choices, prompt.Choice{Label: kw, Hint: semver.Inc(latest, kw), Value: kw})
	}
	return append(choices, prompt.Choice{Label: "Other (specify)", Value: otherChoice})
}

func (p *Plugin) ask(ctx context.Context, base plugin.IncrementBase) (string, error) {
	for {
		choice, err := p.Prompt().Select(ctx, "Select increment (next version):", Choices(base.LatestVersion))
		if err != nil {
			return "", err
		}
		if kw, _ := choice.Value.(string); kw != otherChoice {
			if v := semver.Inc(base.LatestVersion, kw); v != "" {
				return v, nil
			}
			continue
		}
		for {
			v, err := p.Prompt().Input(ctx, "Please enter a valid version:")
			if err != nil {
				return "", err
			}
			if semver.Valid(v) {
				return v, nil
			}
			p.Console().Warn(fmt.Sprintf("%q is not a valid semantic version.", v))
		}
	}
}

// Normalize shapes a resolved version for tagging. When tagRegex matches,
// the matched tag text is kept with its environment prefix and suffix, so the
// tag stays inside the environment's tag pattern. Otherwise a valid version
// is kept and an invalid one is coerced if possible.
func Normalize(raw, tagRegex string) string {
	if raw == "" {
		return ""
	}
	if tagRegex != "" {
		if re, err := regexp.Compile(tagRegex); err == nil {
			if m := re.FindStringSubmatch(raw); len(m) > 1 {
				return m[0]
			}
		}
	}
	if semver.Valid(raw) {
		return raw
	}
	if coerced, ok := semver.Coerce(raw); ok {
		return coerced
	}
	return raw
}
