package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/example/releaser/internal/appconfig"
	"github.com/example/releaser/internal/exit"
	"github.com/go-logr/logr"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed defaults.yaml
	defaultsYAML []byte
	//go:embed template.yaml
	templateYAML []byte
)

// WorkingPathEnv overrides the directory a release runs in.
const WorkingPathEnv = "RELEASER_WORKING_PATH"

// Template returns the starter configuration written by `releaser init`.
func Template() []byte {
	return append([]byte(nil), templateYAML...)
}

// Defaults parses the embedded default configuration.
func Defaults() (map[string]any, error) {
	return decodeFile("defaults.yaml", defaultsYAML)
}

// Params describes how a Config is assembled.
type Params struct {
	// Options carries the CLI flags; nil means no caller flags.
	Options *Options
	// Overrides are merged over Options.Overrides().
	Overrides map[string]any
	// Defaults replaces the embedded defaults when non-nil.
	Defaults map[string]any
	// Dir is where local configuration discovery starts. Defaults to the cwd.
	Dir    string
	Fs     afero.Fs
	Getenv func(string) string
	Logger logr.Logger
}

// Config is the mutable release context. Persistent options are fixed at
// construction; plugins extend the runtime layer through Merge. Readers always
// see options merged with the runtime layer.
type Config struct {
	mu      sync.RWMutex
	options map[string]any
	runtime map[string]any
	file    string
	log     logr.Logger
}

// New builds the persistent options in increasing precedence: defaults, local
// configuration file, environment-derived values, caller overrides.
func New(p Params) (*Config, error) {
	if p.Fs == nil {
		p.Fs = afero.NewOsFs()
	}
	if p.Getenv == nil {
		p.Getenv = os.Getenv
	}
	cwd, _ := os.Getwd()
	if p.Dir == "" {
		p.Dir = cwd
	}

	defaults := p.Defaults
	if defaults == nil {
		var err error
		if defaults, err = Defaults(); err != nil {
			return nil, err
		}
	}
	options := DeepMerge(map[string]any{"working_path": cwd}, defaults)

	if p.Logger.GetSink() == nil {
		p.Logger = logr.Discard()
	}
	cfg := &Config{runtime: map[string]any{}, log: p.Logger}
	if p.Options == nil || !p.Options.NoLocalConfig() {
		explicit := ""
		if p.Options != nil {
			explicit = strings.TrimSpace(p.Options.ConfigFile)
		}
		local, path, err := loadLocal(p.Fs, explicit, p.Dir)
		if err != nil {
			return nil, err
		}
		cfg.file = path
		DeepMerge(options, local)
	}

	DeepMerge(options, envLayer(p.Getenv))

	overrides := map[string]any{}
	if p.Options != nil {
		overrides = p.Options.Overrides()
	}
	DeepMerge(overrides, p.Overrides)
	DeepMerge(options, overrides)

	cfg.options = options
	cfg.log.V(1).Info("config resolved", "file", cfg.file, "options", options)
	return cfg, nil
}

func envLayer(getenv func(string) string) map[string]any {
	out := map[string]any{}
	if wp := strings.TrimSpace(getenv(WorkingPathEnv)); wp != "" {
		out["working_path"] = wp
	}
	if DetectCI(getenv) {
		out["ci"] = true
	}
	return out
}

// ciVendors are environment variables set by common CI providers.
var ciVendors = []string{
	"BUILD_ID", "BUILD_NUMBER", "CI_APP_ID", "CI_BUILD_ID", "CI_BUILD_NUMBER", "CI_NAME",
	"CONTINUOUS_INTEGRATION", "RUN_ID", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL",
	"BUILDKITE", "CIRCLECI", "TRAVIS", "TEAMCITY_VERSION", "TF_BUILD", "DRONE",
}

// DetectCI reports whether the process runs under a CI provider.
func DetectCI(getenv func(string) string) bool {
	ci := getenv("CI")
	if strings.EqualFold(ci, "false") {
		return false
	}
	if ci != "" {
		return true
	}
	for _, name := range ciVendors {
		if getenv(name) != "" {
			return true
		}
	}
	return false
}

func loadLocal(fs afero.Fs, explicit, dir string) (map[string]any, string, error) {
	path := explicit
	if path == "" {
		path = appconfig.FindConfigFile(fs, dir)
		if path == "" {
			return map[string]any{}, "", nil
		}
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", exit.Wrap(exit.ErrConfig, "read configuration file %s: %v", path, err)
	}
	local, err := decodeFile(path, data)
	if err != nil {
		return nil, "", err
	}
	return local, path, nil
}

func decodeFile(path string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, exit.Wrap(exit.ErrConfig, "parse %s: %v", path, err)
		}
		raw = m
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, exit.Wrap(exit.ErrConfig, "parse %s: %v", path, err)
		}
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, exit.Wrap(exit.ErrConfig, "the configuration file is invalid: %s", path)
	}
	return clone(m).(map[string]any), nil
}

// File returns the local configuration file in use, if any.
func (c *Config) File() string {
	return c.file
}

// Merge deep-merges partial into the runtime layer.
func (c *Config) Merge(partial map[string]any) {
	if len(partial) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	DeepMerge(c.runtime, partial)
	c.log.V(1).Info("context updated", "values", partial)
}

// Context returns a deep snapshot of options merged with runtime values.
func (c *Config) Context() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := clone(c.options).(map[string]any)
	return DeepMerge(snapshot, c.runtime)
}

// Get returns the value at a dotted path of the merged context, or nil.
func (c *Config) Get(path string) any {
	v, _ := Lookup(c.Context(), path)
	return v
}

// String returns the value at path as a string.
func (c *Config) String(path string) string {
	return cast.ToString(c.Get(path))
}

// Bool returns the value at path as a bool.
func (c *Config) Bool(path string) bool {
	return cast.ToBool(c.Get(path))
}

// StringSlice returns the value at path as a string slice. A single string
// becomes a one-element slice.
func (c *Config) StringSlice(path string) []string {
	return ToStringSlice(c.Get(path))
}

// Map returns the mapping at path, or an empty map.
func (c *Config) Map(path string) map[string]any {
	if m, ok := asMap(c.Get(path)); ok {
		return m
	}
	return map[string]any{}
}

// Decode decodes the value at path into out using mapstructure with weak typing.
func (c *Config) Decode(path string, out any) error {
	return DecodeValue(c.Get(path), out)
}

// DecodeValue decodes an arbitrary context value into out.
func DecodeValue(v any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// ToStringSlice converts a string or list value into a string slice.
func ToStringSlice(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	}
	return cast.ToStringSlice(v)
}

// SetCI switches the run between interactive and non-interactive mode.
func (c *Config) SetCI(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options["ci"] = v
}

// IsCI reports whether prompts are disabled.
func (c *Config) IsCI() bool { return c.Bool("ci") }

// IsDryRun reports whether mutating commands are suppressed.
func (c *Config) IsDryRun() bool { return c.Bool("dry-run") }

// IsIncrement reports whether a version bump was requested at all.
func (c *Config) IsIncrement() bool {
	switch v := c.Get("increment").(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(strings.TrimSpace(v), "false")
	}
	return true
}

// IsPromptOnlyVersion reports whether only the version prompt is interactive.
func (c *Config) IsPromptOnlyVersion() bool { return c.Bool("only-version") }

// Verbosity returns the verbose level (0 when quiet).
func (c *Config) Verbosity() int {
	switch v := c.Get("verbose").(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return cast.ToInt(v)
	}
}
