package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg/buildsys"
	"github.com/arkottke/strata-tools/pkg/version"
)

var installerCmd = &cobra.Command{
	Use:   "installer [OPTION=VALUE]...",
	Short: "Builds and packages Strata for each architecture",
	Long: `Evaluates the installer recipe (the built-in one unless --recipe is passed) and runs the
build and package steps of every selected architecture. Recipe options can be set with
OPTION=VALUE arguments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, targets, _, err := loadRecipe(cmd, args)
		if err != nil {
			return err
		}

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		failFast := cfg.Installer.FailFast
		if cmd.Flags().Changed("fail-fast") {
			failFast, _ = cmd.Flags().GetBool("fail-fast")
		}

		archs, err := selectedArchs(cmd)
		if err != nil {
			return err
		}

		return buildsys.RunTargets(ctx, targets, buildsys.RunOptions{
			Archs:    archs,
			DryRun:   dryRun,
			FailFast: failFast,
			Stdout:   cmd.OutOrStdout(),
			Stderr:   cmd.ErrOrStderr(),
		})
	},
}

var installerPlanCmd = &cobra.Command{
	Use:   "plan [OPTION=VALUE]...",
	Short: "Prints the steps the installer would run",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, targets, root, err := loadRecipe(cmd, args)
		if err != nil {
			return err
		}

		archs, err := selectedArchs(cmd)
		if err != nil {
			return err
		}

		targets, err = targets.Filter(archs)
		if err != nil {
			return err
		}

		return buildsys.Plan(cmd.OutOrStdout(), root, targets)
	},
}

func selectedArchs(cmd *cobra.Command) ([]string, error) {
	if cmd.Flags().Changed("arch") {
		return cmd.Flags().GetStringSlice("arch")
	}
	return cfg.Archs(), nil
}

func parseOptions(args []string) (map[string]string, error) {
	options := make(map[string]string)
	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos < 1 {
			return nil, eris.Errorf("Invalid option %q, expected OPTION=VALUE", part)
		}
		options[part[:pos]] = part[pos+1:]
	}
	return options, nil
}

func loadRecipe(cmd *cobra.Command, args []string) (context.Context, buildsys.TargetList, string, error) {
	options, err := parseOptions(args)
	if err != nil {
		return nil, nil, "", err
	}

	root, err := projectRoot()
	if err != nil {
		return nil, nil, "", err
	}

	recipe := cfg.Installer.Recipe
	if cmd.Flags().Changed("recipe") {
		recipe, _ = cmd.Flags().GetString("recipe")
	}

	scriptCfg := buildsys.ScriptConfig{
		ProjectRoot: root,
		Options:     options,
		Configure:   true,
		Version: func(ctx context.Context) (string, error) {
			info, err := version.Detect(ctx, version.Options{
				Source:      version.Source(cfg.Version.Source),
				ProjectFile: resolve(root, cfg.Project),
				Dir:         root,
				Default:     cfg.Version.Default,
				Logger:      &logger,
			})
			if err != nil {
				return "", err
			}
			return info.String(), nil
		},
	}

	if recipe == "" {
		scriptCfg.Filename = filepath.Join(root, buildsys.DefaultRecipeName)
		scriptCfg.Source = buildsys.DefaultRecipe
	} else {
		scriptCfg.Filename = resolve(root, recipe)
	}

	ctx := buildsys.WithLogger(cmd.Context(), &logger)
	targets, _, err := buildsys.RunScript(ctx, scriptCfg)
	if err != nil {
		return nil, nil, "", err
	}

	return ctx, targets, root, nil
}

func init() {
	flags := installerCmd.PersistentFlags()
	flags.String("recipe", "", "Starlark recipe to use instead of the built-in one")
	flags.StringSlice("arch", nil, "only build these architectures (default from config)")

	installerCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	installerCmd.Flags().Bool("fail-fast", false, "stop at the first failing step")

	installerCmd.AddCommand(installerPlanCmd)
	rootCmd.AddCommand(installerCmd)
}
