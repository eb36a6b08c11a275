package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version [prefix]",
	Short: "Prints the Strata version",
	Long: `Determines the version of the Strata checkout from git, svn or the project file and
prints it, optionally prefixed. The result can also be written to a C header.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := detectVersion(cmd)
		if err != nil {
			return err
		}

		header, err := cmd.Flags().GetString("header")
		if err != nil {
			return err
		}
		if header != "" {
			changed, err := version.WriteHeaderFile(header, cfg.Version.Define, info)
			if err != nil {
				return err
			}
			if changed {
				logger.Info().Str("task", "version").Msgf("Updated %s", header)
			} else {
				logger.Debug().Str("task", "version").Msgf("%s is up to date", header)
			}
		}

		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}
		if asJSON {
			data, err := json.Marshal(info)
			if err != nil {
				return eris.Wrap(err, "Failed to encode version")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		fmt.Fprintln(cmd.OutOrStdout(), prefix+info.String())
		return nil
	},
}

func detectVersion(cmd *cobra.Command) (version.Info, error) {
	root, err := projectRoot()
	if err != nil {
		return version.Info{}, err
	}

	source := cfg.Version.Source
	if cmd.Flags().Changed("source") {
		source, _ = cmd.Flags().GetString("source")
	}

	projectFile := cfg.Project
	if cmd.Flags().Changed("file") {
		projectFile, _ = cmd.Flags().GetString("file")
	}

	return version.Detect(cmd.Context(), version.Options{
		Source:      version.Source(source),
		ProjectFile: resolve(root, projectFile),
		Dir:         root,
		Default:     cfg.Version.Default,
		Logger:      &logger,
	})
}

func init() {
	versionCmd.Flags().String("source", "", "where to read the version from: auto, project, git or svn (default from config)")
	versionCmd.Flags().String("file", "", "project file carrying the version (default from config)")
	versionCmd.Flags().String("header", "", "write a C header defining the version to this path")
	versionCmd.Flags().Bool("json", false, "print the version details as JSON")

	rootCmd.AddCommand(versionCmd)
}
