// File: internal/config/config.go
// Brief: Internal config package implementation for 'config'.

// Package config holds the layered release context shared by every plugin and
// hook of a run. Options translates Cobra/Viper flag values into the caller
// override layer; Config merges that layer over environment values, the local
// configuration file, and the embedded defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Options holds the CLI configuration for a release run.
type Options struct {
	ConfigFile  string
	DryRun      bool
	Environment string
	Increment   string
	CI          bool
	OnlyVersion bool
	Verbose     int
	LogLevel    string

	// ciSet records whether --ci was passed explicitly so an unset flag does not
	// mask CI detection.
	ciSet bool
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{LogLevel: "info"}
}

// BindFlags attaches release flags to an arbitrary FlagSet and returns the flag names for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVarP(&o.ConfigFile, "config", "c", "", "Path to the configuration file (\"false\" skips local configuration)")
	names = append(names, "config")
	fs.BoolVarP(&o.DryRun, "dry-run", "d", false, "Print mutating commands instead of running them")
	names = append(names, "dry-run")
	fs.StringVarP(&o.Environment, "environment", "e", "", "Alias of the environment to release")
	names = append(names, "environment")
	fs.StringVarP(&o.Increment, "increment", "i", "", "Increment: major, minor, patch, current, or an explicit version")
	names = append(names, "increment")
	fs.BoolVar(&o.CI, "ci", false, "No prompts, no user interaction (for CI pipelines)")
	names = append(names, "ci")
	fs.BoolVar(&o.OnlyVersion, "only-version", false, "Prompt for the version only, then release without further questions")
	names = append(names, "only-version")
	fs.CountVarP(&o.Verbose, "verbose", "V", "Verbose output (repeat for more detail)")
	names = append(names, "verbose")
	return names
}

// Validate normalizes the flag values and records which optional flags were set.
func (o *Options) Validate(fs *pflag.FlagSet) error {
	o.Increment = strings.TrimSpace(o.Increment)
	o.Environment = strings.TrimSpace(o.Environment)
	if o.Verbose < 0 {
		return fmt.Errorf("--verbose cannot be negative")
	}
	if fs != nil {
		if f := fs.Lookup("ci"); f != nil && f.Changed {
			o.ciSet = true
		}
	}
	return nil
}

// NoLocalConfig reports whether --config=false disabled the local file.
func (o *Options) NoLocalConfig() bool {
	return strings.EqualFold(strings.TrimSpace(o.ConfigFile), "false")
}

// Overrides returns the caller layer of the release context. Only values the
// caller actually supplied are present so lower layers still apply.
func (o *Options) Overrides() map[string]any {
	out := map[string]any{}
	if o.DryRun {
		out["dry-run"] = true
	}
	if o.Environment != "" {
		out["environment"] = o.Environment
	}
	if o.Increment != "" {
		out["increment"] = o.Increment
	}
	if o.CI || o.ciSet {
		out["ci"] = o.CI
	}
	if o.OnlyVersion {
		out["only-version"] = true
	}
	if o.Verbose > 0 {
		out["verbose"] = o.Verbose
	}
	return out
}
