// Package appconfig locates repository-local release configuration and the
// dotenv files that seed the process environment before a run.
package appconfig

import (
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// ConfigNames are the local configuration file names, in lookup order.
var ConfigNames = []string{
	".releaser.yaml",
	".releaser.yml",
	"releaser.yaml",
	"releaser.yml",
	".releaser.json",
	"releaser.json",
	"releaser.toml",
}

// FindRepoRoot walks up from start to the first directory holding a .git entry
// or a releaser configuration file. It returns "" when none is found.
func FindRepoRoot(fs afero.Fs, start string) string {
	start = strings.TrimSpace(start)
	if start == "" {
		return ""
	}
	info, err := fs.Stat(start)
	if err == nil && !info.IsDir() {
		start = filepath.Dir(start)
	}
	current := start
	for {
		if isRepoRoot(fs, current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func isRepoRoot(fs afero.Fs, dir string) bool {
	if dir == "" {
		return false
	}
	if _, err := fs.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return ConfigIn(fs, dir) != ""
}

// FindConfigFile searches start and its parents, stopping at the repository
// root, for the first file named in ConfigNames.
func FindConfigFile(fs afero.Fs, start string) string {
	current := strings.TrimSpace(start)
	if current == "" {
		return ""
	}
	for {
		if path := ConfigIn(fs, current); path != "" {
			return path
		}
		if _, err := fs.Stat(filepath.Join(current, ".git")); err == nil {
			return ""
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// ConfigIn returns the configuration file present directly in dir.
func ConfigIn(fs afero.Fs, dir string) string {
	for _, name := range ConfigNames {
		path := filepath.Join(dir, name)
		if fi, err := fs.Stat(path); err == nil && !fi.IsDir() {
			return path
		}
	}
	return ""
}

// ExpandPath resolves a leading ~ and makes path absolute relative to base.
func ExpandPath(path, base string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) && base != "" {
		expanded = filepath.Join(base, expanded)
	}
	return filepath.Clean(expanded), nil
}
