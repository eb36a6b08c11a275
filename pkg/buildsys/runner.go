package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/arkottke/strata-tools/pkg/fsutil"
)

// RunOptions controls how RunTargets executes a recipe.
type RunOptions struct {
	// Archs selects the targets to run. All targets run if it's empty.
	Archs []string
	// DryRun only logs the commands.
	DryRun bool
	// FailFast stops at the first failing command instead of continuing with the next one.
	FailFast bool
	Stdout   io.Writer
	Stderr   io.Writer
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return defaultExecHandler(ctx, args)
	}

	// always use our cross-platform implementation for these operations to make sure
	// they behave consistently
	var err error
	switch args[0] {
	case "mv":
		err = runMv(ctx, args[1:])
	case "rm":
		err = runRm(ctx, args[1:])
	case "mkdir":
		err = runMkdir(ctx, args[1:])
	default:
		return defaultExecHandler(ctx, args)
	}

	if err != nil {
		hc := interp.HandlerCtx(ctx)
		fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], err)
		return interp.NewExitStatus(1)
	}
	return nil
}

// splitFlags separates short flags like -rf from the remaining arguments.
func splitFlags(args []string, allowed string) (map[rune]bool, []string, error) {
	flags := make(map[rune]bool)
	for idx, arg := range args {
		if arg == "--" {
			return flags, args[idx+1:], nil
		}
		if len(arg) < 2 || arg[0] != '-' {
			return flags, args[idx:], nil
		}

		for _, flag := range arg[1:] {
			if !strings.ContainsRune(allowed, flag) {
				return nil, nil, eris.Errorf("unknown flag -%c", flag)
			}
			flags[flag] = true
		}
	}
	return flags, nil, nil
}

func runMv(ctx context.Context, args []string) error {
	_, args, err := splitFlags(args, "f")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return eris.New("Not enough parameters")
	}

	return fsutil.Move(interp.HandlerCtx(ctx).Dir, args[:len(args)-1], args[len(args)-1])
}

func runRm(ctx context.Context, args []string) error {
	flags, args, err := splitFlags(args, "rRf")
	if err != nil {
		return err
	}

	return fsutil.Remove(interp.HandlerCtx(ctx).Dir, args, flags['r'] || flags['R'], flags['f'])
}

func runMkdir(ctx context.Context, args []string) error {
	flags, args, err := splitFlags(args, "p")
	if err != nil {
		return err
	}

	return fsutil.Mkdir(interp.HandlerCtx(ctx).Dir, args, flags['p'])
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// RunTargets executes the build and then the package commands of every selected target in
// declaration order. Failed commands are logged and collected into the returned error; the
// remaining commands still run unless opts.FailFast is set.
func RunTargets(ctx context.Context, targets TargetList, opts RunOptions) error {
	selected, err := targets.Filter(opts.Archs)
	if err != nil {
		return err
	}

	if len(selected) == 0 {
		return eris.New("the recipe did not declare any targets")
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var errs error
	for _, t := range selected {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		log(ctx).Info().Str("arch", t.Name).Msgf("Building %s", t.Desc)

		stop, err := runTarget(ctx, t, opts)
		errs = multierr.Append(errs, err)
		if stop {
			return errs
		}
	}

	if n := len(multierr.Errors(errs)); n > 0 {
		log(ctx).Error().Msgf("%d step(s) failed", n)
	}
	return errs
}

func runTarget(ctx context.Context, t *Target, opts RunOptions) (bool, error) {
	logger := log(ctx).With().Str("arch", t.Name).Logger()

	if !opts.DryRun {
		if err := os.MkdirAll(t.Base, 0o755); err != nil {
			return opts.FailFast, eris.Wrapf(err, "%s: failed to create %s", t.Name, t.Base)
		}
	}

	runner, err := interp.New(
		interp.Dir(t.Base),
		interp.Env(expand.ListEnviron(composeEnv(os.Environ(), t.Env, t.Path)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, opts.Stdout, opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		if opts.DryRun {
			runner = nil
		} else {
			return opts.FailFast, eris.Wrapf(err, "%s: failed to initialize runner", t.Name)
		}
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	var errs error
	for _, phase := range []string{PhaseBuild, PhasePackage} {
		for _, item := range t.Commands(phase) {
			stmts, err := item.ToShellStmts(parser)
			if err != nil {
				errs = multierr.Append(errs, err)
				if opts.FailFast {
					return true, errs
				}
				continue
			}

			for _, stmt := range stmts {
				strBuffer.Reset()
				if err := printer.Print(&strBuffer, stmt); err != nil {
					return true, multierr.Append(errs, err)
				}
				line := strBuffer.String()

				logger.Info().
					Str("task", phase).
					Bool("command", true).
					Msg(line)

				if opts.DryRun {
					continue
				}

				err = runner.Run(ctx, stmt)
				if err == nil && runner.Exited() {
					// the recipe called exit
					return false, errs
				}

				if err != nil {
					if ctx.Err() != nil {
						return true, multierr.Append(errs, ctx.Err())
					}

					err = eris.Wrapf(err, "%s: %s step failed: %s", t.Name, phase, line)
					logger.Error().Str("task", phase).Err(err).Msg("Step failed")
					errs = multierr.Append(errs, err)

					if opts.FailFast {
						return true, errs
					}

					// -e left the shell in the exited state; start the next step from a clean slate
					runner.Reset()
				}
			}
		}
	}

	return false, errs
}
