// Package git tags and pushes the release. It tracks the release as an
// explicit state machine and deletes the tag it created when the run is
// interrupted before the push completes.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/environment"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/gitinfo"
	"github.com/example/releaser/internal/plugin"
	"github.com/example/releaser/internal/semver"
	"github.com/example/releaser/internal/shell"
	"github.com/spf13/cast"
)

// Name is the namespace of the git plugin.
const Name = "git"

const rollbackTimeout = 30 * time.Second

var tagExists = regexp.MustCompile(`tag '.+' already exists`)

// Kind returns the internal git plugin kind. isRepo reports whether the
// working directory is a git repository; nil asks git.
func Kind(isRepo func(ctx context.Context) bool) plugin.Kind {
	if isRepo == nil {
		isRepo = IsRepo
	}
	return plugin.Kind{
		Name: Name,
		IsEnabled: func(ctx context.Context, options any) (bool, error) {
			return !plugin.IsFalse(options) && isRepo(ctx), nil
		},
		New: func(p plugin.Params) (plugin.Plugin, error) {
			return New(p), nil
		},
	}
}

// IsRepo reports whether the current directory is inside a git repository.
func IsRepo(ctx context.Context) bool {
	return exec.CommandContext(ctx, "git", "rev-parse", "--git-dir").Run() == nil
}

// Options are read from the git section of the context.
type Options struct {
	Push          bool     `mapstructure:"push"`
	Remote        string   `mapstructure:"remote"`
	TagAnnotation string   `mapstructure:"tagAnnotation"`
	FetchRetries  int      `mapstructure:"fetchRetries"`
	TagArgs       []string `mapstructure:"-"`
	PushArgs      []string `mapstructure:"-"`
	TagExclude    []string `mapstructure:"-"`
}

// defaultOptions fill the fields a configuration leaves empty.
var defaultOptions = Options{TagAnnotation: "Release {{ .version }}"}

// Plugin is the git release plugin.
type Plugin struct {
	*plugin.Base

	mu     sync.Mutex
	state  State
	remote string
	tagged atomic.Bool

	// tagMu spans tag creation and rollback so an interrupt never sees a
	// tag that exists but is not yet recorded.
	tagMu      sync.Mutex
	rolledBack bool
}

// New returns the git plugin.
func New(p plugin.Params) *Plugin {
	return &Plugin{Base: plugin.NewBase(p)}
}

// State returns the current state of the release.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Plugin) advance(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	p.Log().V(1).Info("git state", "from", from.String(), "to", to.String())
}

func (p *Plugin) options() (Options, error) {
	raw := p.Options()
	opts := Options{Push: true}
	if err := config.DecodeValue(raw, &opts); err != nil {
		return Options{}, exit.Wrap(exit.ErrConfig, "git options: %v", err)
	}
	opts.TagArgs = argList(raw["tagArgs"])
	opts.PushArgs = argList(raw["pushArgs"])
	opts.TagExclude = argList(raw["tagExclude"])
	if err := mergo.Merge(&opts, defaultOptions); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (p *Plugin) Init(ctx context.Context) error {
	opts, err := p.options()
	if err != nil {
		return err
	}
	err = p.Spinner().Show("Fetch repo info.", func() error {
		return p.inspect(ctx, opts)
	})
	if err != nil {
		return err
	}
	if opts.Push && p.Config().String("remoteUrl") == "" {
		return exit.Wrap(exit.ErrConfig, "Could not get remote Git url.\nPlease add a remote repository.")
	}
	if rb := p.Rollback(); rb != nil {
		rb.Arm(p.rollback)
	}
	return nil
}

func (p *Plugin) inspect(ctx context.Context, opts Options) error {
	cfg := p.Config()
	accept, err := tagFilter(cfg.String("tagMatch"), cfg.String("tagRegex"), opts.TagExclude)
	if err != nil {
		return err
	}
	branch := p.branchName(ctx)
	remote, url := p.remoteURL(ctx, opts.Remote, branch)
	if url != "" {
		if err := p.fetch(ctx, url, opts.FetchRetries); err != nil {
			return err
		}
	}
	p.remote = remote
	p.advance(Fetched)

	repo := gitinfo.Parse(url).Map()
	values := map[string]any{"remoteUrl": url, "branchName": branch, "repo": repo}
	p.SetContext(values)
	cfg.Merge(values)

	latest := p.latestTag(ctx, cfg.String("tagMatch"), accept)
	cfg.Merge(map[string]any{"latestTag": latest})
	p.Log().V(1).Info("repository inspected", "remote", url, "branch", branch, "latestTag", latest)
	return nil
}

func (p *Plugin) GetName(context.Context) (string, error) {
	return cast.ToString(p.GetContext("repo.project")), nil
}

// GetLatestVersion answers the latest matching tag, or the initial version
// of the environment when there is none, with its tagger.
func (p *Plugin) GetLatestVersion(ctx context.Context) (*plugin.LatestVersion, error) {
	cfg := p.Config()
	latest := cfg.String("latestTag")
	if latest == "" {
		latest = environment.InitialVersion(cfg.String("tagRegex"))
	}
	name, date := p.taggerInfo(ctx, latest)
	return &plugin.LatestVersion{Version: latest, TaggerName: name, TaggerDate: date}, nil
}

// Bump records version as the tag to create.
func (p *Plugin) Bump(_ context.Context, version string) error {
	p.SetContext(map[string]any{"version": version})
	p.Config().Merge(map[string]any{"version": version, "tagName": version})
	p.advance(TagSelected)
	return nil
}

// Release tags and pushes. Tagging is skipped when the version is not
// bumped or the tag is already the latest one. Declining the tag ends the
// run successfully; declining the push skips the after hooks.
func (p *Plugin) Release(ctx context.Context) error {
	cfg := p.Config()
	opts, err := p.options()
	if err != nil {
		return err
	}
	tagName := cfg.String("tagName")
	latestTag := cfg.String("latestTag")

	if !(cfg.String("increment") == semver.Current || (tagName != "" && tagName == latestTag)) {
		ok, err := p.confirm(ctx, fmt.Sprintf("Tag (%s)?", tagName))
		if err != nil {
			return err
		}
		if !ok {
			return exit.Stop("Tag declined")
		}
		if err := p.Spinner().Show("Git tag", func() error { return p.tag(ctx, opts, tagName) }); err != nil {
			return err
		}
	}

	if !opts.Push {
		return nil
	}
	ok, err := p.confirm(ctx, "Push Tag?")
	if err != nil {
		return err
	}
	if !ok {
		return plugin.ErrSkip
	}
	if err := p.Spinner().Show("Git push", func() error { return p.push(ctx, opts, tagName) }); err != nil {
		return err
	}
	return nil
}

func (p *Plugin) confirm(ctx context.Context, message string) (bool, error) {
	if p.Config().IsCI() || p.Prompt() == nil {
		return true, nil
	}
	return p.Prompt().Confirm(ctx, message, true)
}

func (p *Plugin) tag(ctx context.Context, opts Options, tagName string) error {
	cfg := p.Config()
	message, err := shell.Render(opts.TagAnnotation, cfg.Context())
	if err != nil {
		return err
	}
	argv := append([]string{"git", "tag", "--annotate", "--message", message}, opts.TagArgs...)
	argv = append(argv, tagName)

	p.tagMu.Lock()
	defer p.tagMu.Unlock()
	if p.rolledBack {
		return fmt.Errorf("tag %s: release rolled back: %w", tagName, context.Canceled)
	}
	if _, err := p.Exec(ctx, argv, shell.Mutating); err != nil {
		if ctx.Err() != nil && p.tagCreated(ctx, tagName) {
			p.tagged.Store(true)
			return err
		}
		if !tagExists.MatchString(err.Error()) {
			return err
		}
		if tagName == cfg.String("latestTag") {
			p.Console().Warn(fmt.Sprintf("Tag %q already exists", tagName))
			return nil
		}
		return fmt.Errorf("%w: %v", exit.ErrTagExists, err)
	}
	p.tagged.Store(true)
	p.advance(Tagged)
	return nil
}

func (p *Plugin) push(ctx context.Context, opts Options, tagName string) error {
	remote := p.remote
	if remote == "" {
		remote = "origin"
	}
	argv := append([]string{"git", "push", remote, tagName}, opts.PushArgs...)
	if !p.hasUpstream(ctx) {
		if branch := p.branchName(ctx); branch != "" {
			argv = append(argv, "--set-upstream", remote, branch)
		}
	}
	if _, err := p.Exec(ctx, argv, shell.Mutating); err != nil {
		return err
	}
	if rb := p.Rollback(); rb != nil {
		rb.Disarm()
	}
	p.advance(Pushed)
	return nil
}

// AfterRelease ends the release; the tag is kept from here on.
func (p *Plugin) AfterRelease(context.Context) error {
	if rb := p.Rollback(); rb != nil {
		rb.Disarm()
	}
	p.advance(Finalized)
	return nil
}

// Tagged reports whether this run created the release tag.
func (p *Plugin) Tagged() bool { return p.tagged.Load() }

// tagCreated reports whether tagName exists locally. It asks even when ctx
// is already cancelled.
func (p *Plugin) tagCreated(ctx context.Context, tagName string) bool {
	return p.read(context.WithoutCancel(ctx), "git", "rev-parse", "--quiet", "--verify", "refs/tags/"+tagName) != ""
}

func (p *Plugin) rollback() {
	p.tagMu.Lock()
	defer p.tagMu.Unlock()
	p.rolledBack = true
	if !p.tagged.Load() {
		return
	}
	tagName := p.Config().String("tagName")
	p.Console().Info("Rolling back changes...")
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if _, err := p.Exec(ctx, []string{"git", "tag", "--delete", tagName}, shell.Mutating); err != nil {
		p.Console().Error(fmt.Sprintf("Unable to delete tag %s: %v", tagName, err))
		return
	}
	p.tagged.Store(false)
}
