// main.go bootstraps releaser: it builds the root Cobra command, binds RELEASER_* variables, and maps the run result to an exit code.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/releaser/internal/appconfig"
	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/engine"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/logging"
	"github.com/example/releaser/internal/prompt"
	"github.com/example/releaser/internal/rollback"
	"github.com/example/releaser/internal/telemetry"
	"github.com/example/releaser/internal/ui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RELEASER"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	handleError(err)
	os.Exit(exit.Code(err))
}

// reportedError marks a failure the release output already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:   "releaser [increment]",
		Short: "Version, tag and push a release",
		Long: "releaser resolves the next version from the latest matching tag, creates and pushes the tag, " +
			"and runs the configured hooks around every step.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindViper(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && strings.TrimSpace(opts.Increment) == "" {
				opts.Increment = args[0]
			}
			if err := opts.Validate(cmd.Flags()); err != nil {
				return err
			}
			return runRelease(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level for diagnostics (debug, info, warn, error)")
	opts.BindFlags(cmd.Flags())
	cmd.AddCommand(newInitCommand(), newVersionCommand())
	cmd.Example = `  # Release the next minor version without prompts
  releaser minor --ci

  # Pick the environment by alias and preview the commands
  releaser --environment prod --dry-run

  # Only ask for the version, then release unattended
  releaser --only-version`
	return cmd
}

// bindViper lets RELEASER_<FLAG> variables stand in for flags the caller did
// not pass; dashes become underscores.
func bindViper(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
	for _, fs := range flagSets {
		if err := v.BindPFlags(fs); err != nil {
			return err
		}
	}
	var bindErr error
	for _, fs := range flagSets {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed || !v.IsSet(f.Name) || bindErr != nil {
				return
			}
			val := fmt.Sprintf("%v", v.Get(f.Name))
			if val == "" {
				return
			}
			if err := f.Value.Set(val); err != nil {
				name := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
				bindErr = exit.Wrap(exit.ErrConfig, "%s: %v", name, err)
			}
		})
	}
	return bindErr
}

func runRelease(cmd *cobra.Command, opts *config.Options) error {
	ctx := cmd.Context()
	fs := afero.NewOsFs()
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if _, err := appconfig.LoadDotEnv(fs, dir); err != nil {
		return exit.Wrap(exit.ErrConfig, "load dotenv: %v", err)
	}

	log, err := logging.New(logging.LevelForVerbosity(opts.LogLevel, opts.Verbose))
	if err != nil {
		return err
	}
	cfg, err := config.New(config.Params{Options: opts, Fs: fs, Dir: dir, Logger: log})
	if err != nil {
		return err
	}

	console := logging.NewConsole(cfg.IsCI(), cfg.Verbosity(), cfg.IsDryRun())
	console.Out = cmd.OutOrStdout()
	console.Err = cmd.ErrOrStderr()
	spinner := ui.NewSpinner(cmd.ErrOrStderr(), cfg.IsCI(), cfg.Verbosity() > 0)

	tracer, err := telemetry.Setup(ctx, os.Getenv)
	if err != nil {
		log.Error(err, "tracing disabled")
		tracer = telemetry.Noop()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	scope := rollback.NewScope()
	stopWatch := scope.Watch(ctx)
	defer stopWatch()
	defer scope.Fire()

	var p prompt.Prompter
	if !cfg.IsCI() && ui.IsInteractive() {
		p = prompt.NewTerminal()
	}

	if _, err := engine.Run(ctx, engine.Deps{
		Config:   cfg,
		Console:  console,
		Log:      log,
		Prompt:   p,
		Spinner:  spinner,
		Rollback: scope,
		Tracer:   tracer,
	}); err != nil {
		return &reportedError{err: err}
	}
	return nil
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
}
