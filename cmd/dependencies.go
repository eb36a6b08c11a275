package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arkottke/strata-tools/pkg"
	"github.com/arkottke/strata-tools/pkg/deps"
)

var fetchDepsCmd = &cobra.Command{
	Use:   "fetch-deps [VAR=VALUE]...",
	Short: "Downloads and unpacks dependencies",
	Long: `Downloads and unpacks the toolchain dependencies listed in DEPS.yml. VAR=VALUE arguments
are available to the if/ifNot conditions and {VAR} placeholders.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg.PrintTask("Loading config")
		root, err := projectRoot()
		if err != nil {
			return err
		}

		vars, err := parseOptions(args)
		if err != nil {
			return err
		}

		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		depsPath := resolve(root, cfg.Deps.File)
		depsCfg, err := deps.LoadConfig(depsPath)
		if err != nil {
			return err
		}

		stampPath := resolve(root, cfg.Deps.Stamps)
		stamps, err := deps.LoadStamps(stampPath)
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading dependencies")
		res, err := deps.Fetch(cmd.Context(), depsCfg, stamps, deps.Options{
			ProjectRoot: root,
			Vars:        vars,
			Update:      update,
			Retries:     cfg.Deps.Retries,
			Progress:    cmd.ErrOrStderr(),
			Logger:      &logger,
		})

		// keep the stamps of everything that was extracted before a failure
		if sErr := stamps.Save(stampPath); sErr != nil {
			pkg.PrintError(sErr.Error())
		}
		if err != nil {
			return err
		}

		if len(res.Changes) > 0 {
			pkg.PrintTask("Updating checksums")
			updated, err := depsCfg.UpdateChecksums(res.Changes)
			if err != nil {
				return err
			}

			err = os.WriteFile(depsPath, []byte(updated), 0o660)
			if err != nil {
				return eris.Wrapf(err, "Failed to write %s", depsPath)
			}

			for name := range res.Changes {
				pkg.PrintSubtask(name)
			}
		}

		pkg.PrintTask("Done")
		logger.Info().Msgf("%d fetched, %d up to date", len(res.Fetched), len(res.Skipped))
		return nil
	},
}

func init() {
	fetchDepsCmd.Flags().BoolP("update", "u", false, "Update checksums")

	rootCmd.AddCommand(fetchDepsCmd)
}
