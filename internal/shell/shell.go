// Package shell runs the commands and hook scripts of a release. Commands are
// rendered against the release context, tokenized, and executed; dry runs echo
// mutating commands instead of running them.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/example/releaser/internal/logging"
	"github.com/go-logr/logr"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Source supplies the current release context.
type Source interface {
	Context() map[string]any
}

// Options tunes a single execution.
type Options struct {
	// Write marks a command that mutates state; dry runs skip it.
	Write bool
	// External marks user-supplied scripts such as hooks.
	External bool
}

var (
	// ReadOnly commands run even during a dry run.
	ReadOnly = Options{}
	// Mutating commands are echoed, not run, during a dry run.
	Mutating = Options{Write: true}
	// Hook is used for user-configured scripts.
	Hook = Options{Write: true, External: true}
)

// Runner executes argv in dir and returns its raw output.
type Runner func(ctx context.Context, dir string, argv []string) (stdout, stderr string, err error)

// Executor renders and runs commands.
type Executor struct {
	src     Source
	console *logging.Console
	log     logr.Logger
	run     Runner
}

// New returns an Executor that runs real subprocesses.
func New(src Source, console *logging.Console, log logr.Logger) *Executor {
	return &Executor{src: src, console: console, log: log, run: runProcess}
}

// WithRunner replaces the process runner, for tests and embedding.
func (e *Executor) WithRunner(run Runner) *Executor {
	clone := *e
	clone.run = run
	return &clone
}

// ExecError reports a failed command with its captured output.
type ExecError struct {
	Command []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *ExecError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Exec runs command, a string or an argv slice, and returns trimmed stdout.
// String commands are rendered as templates against the release context;
// strings containing shell operators run through sh -c.
func (e *Executor) Exec(ctx context.Context, command any, opts Options) (string, error) {
	snapshot := map[string]any{}
	if e.src != nil {
		snapshot = e.src.Context()
	}
	argv, display, err := e.prepare(command, snapshot)
	if err != nil {
		return "", err
	}
	if opts.Write && cast.ToBool(snapshot["dry-run"]) {
		e.console.Exec(argv, true, opts.External)
		return display, nil
	}
	e.console.Exec(argv, false, opts.External)
	e.log.V(1).Info("exec", "argv", argv, "external", opts.External)

	stdout, stderr, err := e.run(ctx, cast.ToString(snapshot["working_path"]), argv)
	if err != nil {
		e.log.V(1).Info("exec failed", "argv", argv, "stderr", strings.TrimSpace(stderr), "err", err.Error())
		return "", errors.WithStack(&ExecError{Command: argv, Stdout: stdout, Stderr: stderr, Err: err})
	}
	return strings.TrimSpace(stdout), nil
}

func (e *Executor) prepare(command any, snapshot map[string]any) ([]string, string, error) {
	switch cmd := command.(type) {
	case []string:
		if len(cmd) == 0 {
			return nil, "", errors.New("empty command")
		}
		return cmd, strings.Join(cmd, " "), nil
	case string:
		rendered, err := Render(cmd, snapshot)
		if err != nil {
			return nil, "", err
		}
		argv, err := Split(rendered)
		if err != nil {
			return nil, "", err
		}
		return argv, rendered, nil
	default:
		return nil, "", errors.Errorf("unsupported command type %T", command)
	}
}

// Split tokenizes a command line. Lines using pipes, lists, or redirects are
// handed to sh -c unchanged.
func Split(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New("empty command")
	}
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", line)
	}
	if p.Position >= 0 || len(args) == 0 {
		return []string{"sh", "-c", line}, nil
	}
	return args, nil
}

// Render executes tmpl as a text/template with sprig functions against data.
// Missing values render as empty strings.
func Render(tmpl string, data map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New("command").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrapf(err, "parse template %q", tmpl)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %q", tmpl)
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

func runProcess(ctx context.Context, dir string, argv []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			cmd.Dir = dir
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
