package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg"
	"github.com/arkottke/strata-tools/pkg/config"
	"github.com/arkottke/strata-tools/pkg/console"
)

var (
	cfg      *config.Config
	logger   = zerolog.New(console.NewWriter(os.Stderr, false))
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "strata-tools",
	Short: "Build tools for Strata",
	Long: `This command bundles the tools used to build, package and document Strata.
This includes the version extractor, the Windows installer builder, image converters
and the figure generator for the user manual.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to the configuration file (default "+config.DefaultFile+")")
	flags.String("log-level", "", "minimum log level (trace, debug, info, warn, error)")
	flags.Bool("log-json", false, "write JSON log events instead of console messages")
	flags.String("log-file", "", "also write the log to this file")
}

func setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	var files []string
	cfgFile, err := flags.GetString("config")
	if err != nil {
		return err
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return eris.Wrapf(err, "Failed to open config %s", cfgFile)
		}
		files = append(files, cfgFile)
	}

	cfg, err = config.Load(files...)
	if err != nil {
		return err
	}

	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("log-file") {
		cfg.Log.File, _ = flags.GetString("log-file")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err = console.NewLogger(console.Options{
		Level: cfg.LogLevel(),
		JSON:  cfg.Log.JSON,
		File:  cfg.Log.File,
		Out:   cmd.ErrOrStderr(),
	})
	return err
}

// projectRoot returns the top of the Strata checkout or the working directory if none was found.
func projectRoot() (string, error) {
	root, err := pkg.GetProjectRoot("")
	if err == nil {
		return root, nil
	}

	logger.Debug().Err(err).Msg("Using the working directory as project root")
	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "Failed to determine working directory")
	}
	return wd, nil
}

// resolve makes paths from the configuration relative to the project root.
func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		logger.Error().Err(err).Msg("Failed")
		_ = closeLog()
		os.Exit(1)
	}
}
