package buildsys

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

type logKey struct{}

func log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		panic("Logger is missing in context!")
	}

	return logger.(*zerolog.Logger)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// Plan writes a readable summary of what RunTargets would do for the given targets. Paths inside
// projectRoot are shortened to the //path notation used by recipes.
func Plan(w io.Writer, projectRoot string, targets TargetList) error {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return err
	}

	shorten := func(value string) string {
		if value == root {
			return "//"
		}
		return strings.ReplaceAll(value, root+string(filepath.Separator), "//")
	}

	var b strings.Builder
	for idx, t := range targets {
		if idx > 0 {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "%s: %s\n", t.Name, t.Desc)
		fmt.Fprintf(&b, "  base: %s\n", simplifyPath(root, t.Base))

		if len(t.Path) > 0 {
			b.WriteString("  path:\n")
			for _, dir := range t.Path {
				fmt.Fprintf(&b, "    %s\n", shorten(dir))
			}
		}

		if len(t.Env) > 0 {
			keys := make([]string, 0, len(t.Env))
			for k := range t.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			b.WriteString("  env:\n")
			for _, k := range keys {
				fmt.Fprintf(&b, "    %s=%s\n", k, shorten(t.Env[k]))
			}
		}

		for _, phase := range []string{PhaseBuild, PhasePackage} {
			cmds := t.Commands(phase)
			if len(cmds) == 0 {
				continue
			}

			fmt.Fprintf(&b, "  %s:\n", phase)
			for _, cmd := range cmds {
				for _, line := range strings.Split(strings.TrimSpace(cmd.Content), "\n") {
					fmt.Fprintf(&b, "    %s\n", line)
				}
			}
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}
