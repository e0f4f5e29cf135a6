// File: cmd/releaser/init.go
// Brief: CLI command wiring and implementation for 'init'.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/releaser/internal/appconfig"
	"github.com/example/releaser/internal/config"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultConfigName = ".releaser.yaml"

type initOptions struct {
	force    bool
	showDiff bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:           "init [working_path]",
		Short:         "Write a starter .releaser.yaml",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			return runInit(afero.NewOsFs(), cwd, target, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&opts.showDiff, "show-diff", false, "Show a diff against an existing configuration file")
	return cmd
}

func runInit(fs afero.Fs, cwd, target string, opts initOptions, out io.Writer) error {
	dir, err := appconfig.ExpandPath(target, cwd)
	if err != nil {
		return err
	}
	if fi, err := fs.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	payload := config.Template()

	path := appconfig.ConfigIn(fs, dir)
	exists := path != ""
	if !exists {
		path = filepath.Join(dir, defaultConfigName)
	}
	if exists && opts.showDiff {
		current, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if bytes.Equal(current, payload) {
			fmt.Fprintf(out, "%s matches the default configuration\n", path)
		} else {
			fmt.Fprint(out, renderUnifiedDiff(string(current), string(payload), path))
		}
	}
	if exists && !opts.force {
		if opts.showDiff {
			return nil
		}
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := afero.WriteFile(fs, path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	mode := "Created"
	if exists {
		mode = "Overwrote"
	}
	fmt.Fprintf(out, "%s %s\n", mode, path)
	return nil
}

func renderUnifiedDiff(before string, after string, path string) string {
	before = strings.TrimRight(before, "\n")
	after = strings.TrimRight(after, "\n")
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before + "\n"),
		B:        difflib.SplitLines(after + "\n"),
		FromFile: path + " (current)",
		ToFile:   path + " (default)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}
