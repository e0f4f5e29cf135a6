// Package plugin defines the capability contract shared by every release
// plugin, the cascade used to query them, and the resolver that assembles the
// ordered plugin list for a run.
package plugin

import (
	"context"
	"errors"

	"github.com/example/releaser/internal/semver"
)

// ErrSkip is returned by a lifecycle method to suppress the after hooks of
// that step. It never fails the run.
var ErrSkip = errors.New("skip remaining hooks")

// Lifecycle stages in pipeline order.
const (
	StageInit          = "init"
	StageBeforeBump    = "beforeBump"
	StageBump          = "bump"
	StageBeforeRelease = "beforeRelease"
	StageRelease       = "release"
	StageAfterRelease  = "afterRelease"
)

// LatestVersion is the answer to the latest-version query.
type LatestVersion struct {
	Version    string
	TaggerName string
	TaggerDate string
}

// IncrementBase is what the version queries are asked about.
type IncrementBase struct {
	LatestVersion string
	Increment     semver.Increment
}

// Plugin is the capability set a release plugin offers. Every method is
// optional in practice: embed *Base to inherit no-op defaults.
type Plugin interface {
	Namespace() string
	Init(ctx context.Context) error
	GetName(ctx context.Context) (string, error)
	GetLatestVersion(ctx context.Context) (*LatestVersion, error)
	GetIncrement(ctx context.Context, base IncrementBase) (semver.Increment, error)
	GetIncrementedVersionCI(ctx context.Context, base IncrementBase) (string, error)
	GetIncrementedVersion(ctx context.Context, base IncrementBase) (string, error)
	BeforeBump(ctx context.Context) error
	Bump(ctx context.Context, version string) error
	BeforeRelease(ctx context.Context) error
	Release(ctx context.Context) error
	AfterRelease(ctx context.Context) error
}

// Kind describes a plugin type and how to build instances of it.
type Kind struct {
	Name string

	// IsEnabled decides from the plugin's options whether it takes part in the
	// run. Nil means enabled unless the options are literally false.
	IsEnabled func(ctx context.Context, options any) (bool, error)

	// DisablePlugin names internal plugins this one replaces.
	DisablePlugin func(ctx context.Context, options any) ([]string, error)

	New func(p Params) (Plugin, error)
}

func (k Kind) enabled(ctx context.Context, options any) (bool, error) {
	if k.IsEnabled != nil {
		return k.IsEnabled(ctx, options)
	}
	return !IsFalse(options), nil
}

func (k Kind) disabled(ctx context.Context, options any) ([]string, error) {
	if k.DisablePlugin == nil {
		return nil, nil
	}
	return k.DisablePlugin(ctx, options)
}

// IsFalse reports whether a plugin options value switches the plugin off.
func IsFalse(options any) bool {
	switch v := options.(type) {
	case bool:
		return !v
	case string:
		return v == "false"
	}
	return false
}

// Call invokes one lifecycle stage on p.
func Call(ctx context.Context, p Plugin, stage, version string) error {
	switch stage {
	case StageInit:
		return p.Init(ctx)
	case StageBeforeBump:
		return p.BeforeBump(ctx)
	case StageBump:
		return p.Bump(ctx, version)
	case StageBeforeRelease:
		return p.BeforeRelease(ctx)
	case StageRelease:
		return p.Release(ctx)
	case StageAfterRelease:
		return p.AfterRelease(ctx)
	}
	return errors.New("unknown lifecycle stage " + stage)
}

// Order returns the plugin order for a stage: externals first while
// preparing the release, internals first when releasing.
func Order(stage string, internal, external []Plugin) []Plugin {
	out := make([]Plugin, 0, len(internal)+len(external))
	if stage == StageRelease || stage == StageAfterRelease {
		out = append(out, internal...)
		return append(out, external...)
	}
	out = append(out, external...)
	return append(out, internal...)
}
